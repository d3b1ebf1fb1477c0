package client

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/rpctest"
	"github.com/Panorama-Block/archive/internal/types"
)

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func transferLog(t *testing.T, block uint64, index uint64, topics ...common.Hash) map[string]interface{} {
	t.Helper()
	parsed := mustABI(t)
	data, err := parsed.Events["Transfer"].Inputs.NonIndexed().Pack(big.NewInt(250))
	require.NoError(t, err)
	if topics == nil {
		topics = []common.Hash{parsed.Events["Transfer"].ID, addressTopic(alice), addressTopic(bob)}
	}
	return map[string]interface{}{
		"address":          token,
		"topics":           topics,
		"data":             hexutil.Encode(data),
		"blockNumber":      hexutil.EncodeUint64(block),
		"blockHash":        testHash(block),
		"transactionHash":  testHash(block + index),
		"transactionIndex": "0x0",
		"logIndex":         hexutil.EncodeUint64(index),
		"removed":          false,
	}
}

func TestGetLogsDecodesEvents(t *testing.T) {
	parsed := mustABI(t)
	server := rpctest.NewServer(t)
	server.Handle("eth_getLogs", func(params []json.RawMessage) (interface{}, error) {
		var filter struct {
			Address   common.Address `json:"address"`
			Topics    []interface{}  `json:"topics"`
			FromBlock string         `json:"fromBlock"`
			ToBlock   string         `json:"toBlock"`
		}
		require.NoError(t, json.Unmarshal(params[0], &filter))
		assert.Equal(t, token, filter.Address)
		assert.Equal(t, "0xa", filter.FromBlock)
		assert.Equal(t, "latest", filter.ToBlock)
		require.Len(t, filter.Topics, 2)
		assert.Equal(t, parsed.Events["Transfer"].ID.Hex(), filter.Topics[0])
		assert.Equal(t, addressTopic(alice).Hex(), filter.Topics[1])

		return []interface{}{
			transferLog(t, 10, 0),
			// missing the indexed "to" topic
			transferLog(t, 11, 1, parsed.Events["Transfer"].ID, addressTopic(alice)),
		}, nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	from := types.AtNumber(10)
	to := types.Latest()
	q := LogQuery{
		Address:   []common.Address{token},
		ABI:       parsed,
		EventName: "Transfer",
		Args:      map[string]interface{}{"from": alice},
		FromBlock: &from,
		ToBlock:   &to,
	}

	logs, err := c.GetLogs(ctx, q)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "Transfer", logs[0].EventName)
	assert.Equal(t, alice, logs[0].Args["from"])
	assert.Equal(t, bob, logs[0].Args["to"])
	assert.Equal(t, big.NewInt(250), logs[0].Args["value"])
	assert.Equal(t, uint64(10), logs[0].BlockNumber)
	assert.Nil(t, logs[1].Args)

	q.Strict = true
	logs, err = c.GetLogs(ctx, q)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestGetLogsWithAllEvents(t *testing.T) {
	parsed := mustABI(t)
	server := rpctest.NewServer(t)
	server.Handle("eth_getLogs", func(params []json.RawMessage) (interface{}, error) {
		var filter struct {
			Topics [][]common.Hash `json:"topics"`
		}
		require.NoError(t, json.Unmarshal(params[0], &filter))
		require.Len(t, filter.Topics, 1)
		assert.ElementsMatch(t, []common.Hash{parsed.Events["Transfer"].ID, parsed.Events["Approval"].ID}, filter.Topics[0])
		return []interface{}{transferLog(t, 3, 0)}, nil
	})
	c := newTestClient(t, server)

	logs, err := c.GetLogs(context.Background(), LogQuery{ABI: parsed})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Transfer", logs[0].EventName)
}

func TestGetLogsValidation(t *testing.T) {
	parsed := mustABI(t)
	server := rpctest.NewServer(t)
	c := newTestClient(t, server)
	ctx := context.Background()

	hash := testHash(1)
	from := types.AtNumber(1)
	_, err := c.GetLogs(ctx, LogQuery{BlockHash: &hash, FromBlock: &from})
	assert.ErrorContains(t, err, "blockHash cannot be combined")

	_, err = c.GetLogs(ctx, LogQuery{ABI: parsed, EventName: "Transfer", Args: map[string]interface{}{"value": big.NewInt(1)}})
	assert.ErrorContains(t, err, "no indexed input")

	_, err = c.GetLogs(ctx, LogQuery{EventName: "Transfer"})
	assert.Error(t, err)
	assert.Zero(t, server.Calls("eth_getLogs"))
}

func TestDecodeEventLog(t *testing.T) {
	parsed := mustABI(t)
	data, err := parsed.Events["Approval"].Inputs.NonIndexed().Pack(big.NewInt(1))
	require.NoError(t, err)

	decoded, err := DecodeEventLog(parsed, types.Log{
		Address: token,
		Topics:  []common.Hash{parsed.Events["Approval"].ID, addressTopic(alice), addressTopic(bob)},
		Data:    data,
	})
	require.NoError(t, err)
	assert.Equal(t, "Approval", decoded.EventName)
	assert.Equal(t, bob, decoded.Args["spender"])

	_, err = DecodeEventLog(parsed, types.Log{Topics: []common.Hash{testHash(1)}})
	assert.Error(t, err)
}
