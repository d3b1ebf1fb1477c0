package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Log is a formatted event log. Position fields are zero for pending logs.
type Log struct {
	Address          common.Address `json:"address"`
	Topics           []common.Hash  `json:"topics"`
	Data             hexutil.Bytes  `json:"data"`
	BlockNumber      uint64         `json:"blockNumber"`
	BlockHash        common.Hash    `json:"blockHash"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	TransactionIndex uint64         `json:"transactionIndex"`
	LogIndex         uint64         `json:"logIndex"`
	Removed          bool           `json:"removed"`
}

// DecodedLog is a log matched against an event ABI. EventName is empty when the
// log could not be decoded.
type DecodedLog struct {
	Log
	EventName string                 `json:"eventName,omitempty"`
	Args      map[string]interface{} `json:"args,omitempty"`
}

// RPCLog is the wire form of a log
type RPCLog struct {
	Address          common.Address  `json:"address"`
	Topics           []common.Hash   `json:"topics"`
	Data             hexutil.Bytes   `json:"data"`
	BlockNumber      *hexutil.Big    `json:"blockNumber"`
	BlockHash        *common.Hash    `json:"blockHash"`
	TransactionHash  *common.Hash    `json:"transactionHash"`
	TransactionIndex *hexutil.Uint64 `json:"transactionIndex"`
	LogIndex         *hexutil.Uint64 `json:"logIndex"`
	Removed          bool            `json:"removed"`
}

// Format converts the wire log into a Log
func (r *RPCLog) Format() Log {
	l := Log{
		Address: r.Address,
		Topics:  r.Topics,
		Data:    r.Data,
		Removed: r.Removed,
	}
	if l.Topics == nil {
		l.Topics = []common.Hash{}
	}
	if r.BlockNumber != nil {
		l.BlockNumber = r.BlockNumber.ToInt().Uint64()
	}
	if r.BlockHash != nil {
		l.BlockHash = *r.BlockHash
	}
	if r.TransactionHash != nil {
		l.TransactionHash = *r.TransactionHash
	}
	if r.TransactionIndex != nil {
		l.TransactionIndex = uint64(*r.TransactionIndex)
	}
	if r.LogIndex != nil {
		l.LogIndex = uint64(*r.LogIndex)
	}
	return l
}

// FormatLogs converts a slice of wire logs
func FormatLogs(raw []RPCLog) []Log {
	logs := make([]Log, len(raw))
	for i := range raw {
		logs[i] = raw[i].Format()
	}
	return logs
}
