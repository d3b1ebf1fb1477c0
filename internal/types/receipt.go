package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ReceiptStatus is the execution outcome of a mined transaction
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// TransactionReceipt is a formatted receipt
type TransactionReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  uint64          `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       uint64          `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	ContractAddress   *common.Address `json:"contractAddress"`
	CumulativeGasUsed uint64          `json:"cumulativeGasUsed"`
	GasUsed           uint64          `json:"gasUsed"`
	EffectiveGasPrice *big.Int        `json:"effectiveGasPrice"`
	BlobGasUsed       *uint64         `json:"blobGasUsed,omitempty"`
	BlobGasPrice      *big.Int        `json:"blobGasPrice,omitempty"`
	Logs              []Log           `json:"logs"`
	LogsBloom         hexutil.Bytes   `json:"logsBloom"`
	Root              *common.Hash    `json:"root,omitempty"`
	Status            ReceiptStatus   `json:"status"`
	Type              TransactionType `json:"type"`
}

// Fee returns gasUsed * effectiveGasPrice plus the blob fee, if any
func (r *TransactionReceipt) Fee() *big.Int {
	fee := new(big.Int)
	if r.EffectiveGasPrice != nil {
		fee.Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	}
	if r.BlobGasUsed != nil && r.BlobGasPrice != nil {
		fee.Add(fee, new(big.Int).Mul(new(big.Int).SetUint64(*r.BlobGasUsed), r.BlobGasPrice))
	}
	return fee
}

// RPCTransactionReceipt is the wire form returned by eth_getTransactionReceipt
type RPCTransactionReceipt struct {
	TransactionHash   common.Hash     `json:"transactionHash"`
	TransactionIndex  hexutil.Uint64  `json:"transactionIndex"`
	BlockHash         common.Hash     `json:"blockHash"`
	BlockNumber       hexutil.Big     `json:"blockNumber"`
	From              common.Address  `json:"from"`
	To                *common.Address `json:"to"`
	ContractAddress   *common.Address `json:"contractAddress"`
	CumulativeGasUsed hexutil.Uint64  `json:"cumulativeGasUsed"`
	GasUsed           hexutil.Uint64  `json:"gasUsed"`
	EffectiveGasPrice *hexutil.Big    `json:"effectiveGasPrice"`
	BlobGasUsed       *hexutil.Uint64 `json:"blobGasUsed"`
	BlobGasPrice      *hexutil.Big    `json:"blobGasPrice"`
	Logs              []RPCLog        `json:"logs"`
	LogsBloom         hexutil.Bytes   `json:"logsBloom"`
	Root              *common.Hash    `json:"root"`
	Status            *hexutil.Uint64 `json:"status"`
	Type              *hexutil.Uint64 `json:"type"`
}

// Format converts the wire receipt into a TransactionReceipt. Pre-byzantium
// receipts carry a state root instead of a status and are reported as success.
func (r *RPCTransactionReceipt) Format() *TransactionReceipt {
	receipt := &TransactionReceipt{
		TransactionHash:   r.TransactionHash,
		TransactionIndex:  uint64(r.TransactionIndex),
		BlockHash:         r.BlockHash,
		BlockNumber:       r.BlockNumber.ToInt().Uint64(),
		From:              r.From,
		To:                r.To,
		ContractAddress:   r.ContractAddress,
		CumulativeGasUsed: uint64(r.CumulativeGasUsed),
		GasUsed:           uint64(r.GasUsed),
		EffectiveGasPrice: toBig(r.EffectiveGasPrice),
		BlobGasUsed:       toUint64Ptr(r.BlobGasUsed),
		BlobGasPrice:      toBig(r.BlobGasPrice),
		LogsBloom:         r.LogsBloom,
		Root:              r.Root,
		Status:            ReceiptSuccess,
		Logs:              make([]Log, len(r.Logs)),
	}
	if r.Status != nil && *r.Status == 0 {
		receipt.Status = ReceiptReverted
	}
	if r.Type != nil {
		receipt.Type = TransactionType(*r.Type)
	}
	for i := range r.Logs {
		receipt.Logs[i] = r.Logs[i].Format()
	}
	return receipt
}
