package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Panorama-Block/archive/internal/types"
)

// LogQuery selects and decodes logs. With an ABI the topics are derived from
// EventName and Args (indexed inputs only); without one Topics is used as is.
type LogQuery struct {
	Address   []common.Address
	ABI       *abi.ABI
	EventName string
	Args      map[string]interface{}
	Topics    [][]common.Hash
	FromBlock *types.BlockSelector
	ToBlock   *types.BlockSelector
	BlockHash *common.Hash
	// Strict drops logs that do not decode against the ABI instead of
	// returning them undecoded.
	Strict bool
}

func (q LogQuery) filter() (types.FilterQuery, error) {
	f := types.FilterQuery{
		Addresses: q.Address,
		Topics:    q.Topics,
		FromBlock: q.FromBlock,
		ToBlock:   q.ToBlock,
		BlockHash: q.BlockHash,
	}
	if q.BlockHash != nil && (q.FromBlock != nil || q.ToBlock != nil) {
		return f, errors.New("blockHash cannot be combined with fromBlock or toBlock")
	}
	if q.ABI == nil {
		if q.EventName != "" || len(q.Args) > 0 {
			return f, errors.New("event name and args require an abi")
		}
		return f, nil
	}

	if q.EventName != "" {
		event, ok := q.ABI.Events[q.EventName]
		if !ok {
			return f, fmt.Errorf("event %q not found in abi", q.EventName)
		}
		topics, err := eventTopics(&event, q.Args)
		if err != nil {
			return f, err
		}
		f.Topics = topics
		return f, nil
	}

	if len(q.Args) > 0 {
		return f, errors.New("args require an event name")
	}
	ids := make([]common.Hash, 0, len(q.ABI.Events))
	for id := range q.events() {
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		f.Topics = [][]common.Hash{ids}
	}
	return f, nil
}

func (q LogQuery) events() map[common.Hash]*abi.Event {
	return eventsByID(q.ABI, q.EventName)
}

// decode decodes logs against the query's ABI, if any
func (q LogQuery) decode(logs []types.Log) []types.DecodedLog {
	out := make([]types.DecodedLog, 0, len(logs))
	if q.ABI == nil {
		for _, l := range logs {
			out = append(out, types.DecodedLog{Log: l})
		}
		return out
	}

	events := q.events()
	for _, l := range logs {
		decoded, err := decodeLog(events, l)
		if err != nil {
			if q.Strict {
				continue
			}
			decoded = types.DecodedLog{Log: l, EventName: decoded.EventName}
		}
		out = append(out, decoded)
	}
	return out
}

// GetLogs returns the logs matching q, decoded when q has an ABI
func (c *Client) GetLogs(ctx context.Context, q LogQuery) ([]types.DecodedLog, error) {
	f, err := q.filter()
	if err != nil {
		return nil, err
	}
	logs, err := c.getLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	return q.decode(logs), nil
}

func (c *Client) getLogs(ctx context.Context, f types.FilterQuery) ([]types.Log, error) {
	arg, err := f.ToRPC()
	if err != nil {
		return nil, err
	}
	var raw []types.RPCLog
	if err := c.call(ctx, &raw, "eth_getLogs", arg); err != nil {
		return nil, err
	}
	return types.FormatLogs(raw), nil
}
