package types

import "github.com/ethereum/go-ethereum/common"

// Event types published by the archive pipeline
const (
	EventBlockArchived       = "block.archived"
	EventTransactionArchived = "transaction.archived"
	EventLogArchived         = "log.archived"
	EventContractEvent       = "contract.event"
	EventBlockReorged        = "block.reorged"
)

// Event represents a generic event in the system
type Event struct {
	Type    string      `json:"type"`
	ChainID uint64      `json:"chainId"`
	Key     string      `json:"key,omitempty"`
	Data    interface{} `json:"data"`
}

// ArchivedTransaction pairs a transaction with its receipt
type ArchivedTransaction struct {
	Transaction *Transaction        `json:"transaction"`
	Receipt     *TransactionReceipt `json:"receipt,omitempty"`
}

// BlockReorg is published when a block does not extend the previously
// archived one
type BlockReorg struct {
	Number         uint64      `json:"number"`
	Hash           common.Hash `json:"hash"`
	ParentHash     common.Hash `json:"parentHash"`
	ArchivedParent common.Hash `json:"archivedParent"`
}
