package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// FilterQuery selects logs for eth_getLogs and eth_newFilter. A nil or empty
// entry in Topics matches any topic at that position.
type FilterQuery struct {
	Addresses []common.Address
	Topics    [][]common.Hash
	FromBlock *BlockSelector
	ToBlock   *BlockSelector
	BlockHash *common.Hash
}

// ToRPC renders the filter object
func (q FilterQuery) ToRPC() (map[string]interface{}, error) {
	arg := map[string]interface{}{}
	switch len(q.Addresses) {
	case 0:
	case 1:
		arg["address"] = q.Addresses[0]
	default:
		arg["address"] = q.Addresses
	}

	if len(q.Topics) > 0 {
		topics := make([]interface{}, len(q.Topics))
		for i, position := range q.Topics {
			switch len(position) {
			case 0:
				topics[i] = nil
			case 1:
				topics[i] = position[0]
			default:
				topics[i] = position
			}
		}
		arg["topics"] = topics
	}

	if q.BlockHash != nil {
		if q.FromBlock != nil || q.ToBlock != nil {
			return nil, errors.New("blockHash cannot be combined with fromBlock or toBlock")
		}
		arg["blockHash"] = *q.BlockHash
		return arg, nil
	}
	if q.FromBlock != nil {
		from, err := q.FromBlock.NumberOrTag()
		if err != nil {
			return nil, err
		}
		arg["fromBlock"] = from
	}
	if q.ToBlock != nil {
		to, err := q.ToBlock.NumberOrTag()
		if err != nil {
			return nil, err
		}
		arg["toBlock"] = to
	}
	return arg, nil
}
