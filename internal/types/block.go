package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Withdrawal is a validator withdrawal included in a block
type Withdrawal struct {
	Index          uint64         `json:"index"`
	ValidatorIndex uint64         `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         uint64         `json:"amount"`
}

// Block is a formatted block. Transactions holds either hashes or full
// transactions depending on how the block was requested.
type Block struct {
	Number                *uint64           `json:"number"`
	Hash                  *common.Hash      `json:"hash"`
	ParentHash            common.Hash       `json:"parentHash"`
	Nonce                 hexutil.Bytes     `json:"nonce,omitempty"`
	Sha3Uncles            common.Hash       `json:"sha3Uncles"`
	LogsBloom             hexutil.Bytes     `json:"logsBloom,omitempty"`
	TransactionsRoot      common.Hash       `json:"transactionsRoot"`
	StateRoot             common.Hash       `json:"stateRoot"`
	ReceiptsRoot          common.Hash       `json:"receiptsRoot"`
	Miner                 common.Address    `json:"miner"`
	Difficulty            *big.Int          `json:"difficulty,omitempty"`
	TotalDifficulty       *big.Int          `json:"totalDifficulty,omitempty"`
	ExtraData             hexutil.Bytes     `json:"extraData"`
	Size                  uint64            `json:"size"`
	GasLimit              uint64            `json:"gasLimit"`
	GasUsed               uint64            `json:"gasUsed"`
	Timestamp             uint64            `json:"timestamp"`
	BaseFeePerGas         *big.Int          `json:"baseFeePerGas,omitempty"`
	BlobGasUsed           *uint64           `json:"blobGasUsed,omitempty"`
	ExcessBlobGas         *uint64           `json:"excessBlobGas,omitempty"`
	MixHash               *common.Hash      `json:"mixHash,omitempty"`
	WithdrawalsRoot       *common.Hash      `json:"withdrawalsRoot,omitempty"`
	ParentBeaconBlockRoot *common.Hash      `json:"parentBeaconBlockRoot,omitempty"`
	Uncles                []common.Hash     `json:"uncles"`
	Withdrawals           []Withdrawal      `json:"withdrawals,omitempty"`
	Transactions          BlockTransactions `json:"transactions"`
}

// Pending reports whether the block has not been mined yet
func (b *Block) Pending() bool {
	return b.Number == nil || b.Hash == nil
}

// NumberU64 returns the block number, or 0 for a pending block
func (b *Block) NumberU64() uint64 {
	if b.Number == nil {
		return 0
	}
	return *b.Number
}

// Time returns the block timestamp
func (b *Block) Time() time.Time {
	return time.Unix(int64(b.Timestamp), 0).UTC()
}

// BlockTransactions is the transactions field of a block
type BlockTransactions struct {
	Hashes []common.Hash  `json:"-"`
	Full   []*Transaction `json:"-"`
}

// Len returns the number of transactions regardless of representation
func (t BlockTransactions) Len() int {
	if t.Full != nil {
		return len(t.Full)
	}
	return len(t.Hashes)
}

// IsFull reports whether the block was fetched with full transactions
func (t BlockTransactions) IsFull() bool {
	return t.Full != nil
}

// FullTransactions returns the transactions, or nil when the block only
// carries hashes
func (t BlockTransactions) FullTransactions() []*Transaction {
	return t.Full
}

// TransactionHashes returns the hashes of the transactions in the block
func (t BlockTransactions) TransactionHashes() []common.Hash {
	if t.Full == nil {
		return t.Hashes
	}
	hashes := make([]common.Hash, len(t.Full))
	for i, tx := range t.Full {
		hashes[i] = tx.Hash
	}
	return hashes
}

func (t BlockTransactions) MarshalJSON() ([]byte, error) {
	if t.Full != nil {
		return json.Marshal(t.Full)
	}
	if t.Hashes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Hashes)
}

// RPCBlock is a block as returned by eth_getBlockByNumber / eth_getBlockByHash
type RPCBlock struct {
	Number                *hexutil.Big      `json:"number"`
	Hash                  *common.Hash      `json:"hash"`
	ParentHash            common.Hash       `json:"parentHash"`
	Nonce                 hexutil.Bytes     `json:"nonce"`
	Sha3Uncles            common.Hash       `json:"sha3Uncles"`
	LogsBloom             hexutil.Bytes     `json:"logsBloom"`
	TransactionsRoot      common.Hash       `json:"transactionsRoot"`
	StateRoot             common.Hash       `json:"stateRoot"`
	ReceiptsRoot          common.Hash       `json:"receiptsRoot"`
	Miner                 common.Address    `json:"miner"`
	Difficulty            *hexutil.Big      `json:"difficulty"`
	TotalDifficulty       *hexutil.Big      `json:"totalDifficulty"`
	ExtraData             hexutil.Bytes     `json:"extraData"`
	Size                  hexutil.Uint64    `json:"size"`
	GasLimit              hexutil.Uint64    `json:"gasLimit"`
	GasUsed               hexutil.Uint64    `json:"gasUsed"`
	Timestamp             hexutil.Uint64    `json:"timestamp"`
	BaseFeePerGas         *hexutil.Big      `json:"baseFeePerGas"`
	BlobGasUsed           *hexutil.Uint64   `json:"blobGasUsed"`
	ExcessBlobGas         *hexutil.Uint64   `json:"excessBlobGas"`
	MixHash               *common.Hash      `json:"mixHash"`
	WithdrawalsRoot       *common.Hash      `json:"withdrawalsRoot"`
	ParentBeaconBlockRoot *common.Hash      `json:"parentBeaconBlockRoot"`
	Uncles                []common.Hash     `json:"uncles"`
	Withdrawals           []rpcWithdrawal   `json:"withdrawals"`
	Transactions          []json.RawMessage `json:"transactions"`
}

type rpcWithdrawal struct {
	Index          hexutil.Uint64 `json:"index"`
	ValidatorIndex hexutil.Uint64 `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         hexutil.Uint64 `json:"amount"`
}

// Format converts the wire block into a Block
func (r *RPCBlock) Format() (*Block, error) {
	b := &Block{
		Number:                bigToUint64Ptr(r.Number),
		Hash:                  r.Hash,
		ParentHash:            r.ParentHash,
		Nonce:                 r.Nonce,
		Sha3Uncles:            r.Sha3Uncles,
		LogsBloom:             r.LogsBloom,
		TransactionsRoot:      r.TransactionsRoot,
		StateRoot:             r.StateRoot,
		ReceiptsRoot:          r.ReceiptsRoot,
		Miner:                 r.Miner,
		Difficulty:            toBig(r.Difficulty),
		TotalDifficulty:       toBig(r.TotalDifficulty),
		ExtraData:             r.ExtraData,
		Size:                  uint64(r.Size),
		GasLimit:              uint64(r.GasLimit),
		GasUsed:               uint64(r.GasUsed),
		Timestamp:             uint64(r.Timestamp),
		BaseFeePerGas:         toBig(r.BaseFeePerGas),
		BlobGasUsed:           toUint64Ptr(r.BlobGasUsed),
		ExcessBlobGas:         toUint64Ptr(r.ExcessBlobGas),
		MixHash:               r.MixHash,
		WithdrawalsRoot:       r.WithdrawalsRoot,
		ParentBeaconBlockRoot: r.ParentBeaconBlockRoot,
		Uncles:                r.Uncles,
	}
	if b.Uncles == nil {
		b.Uncles = []common.Hash{}
	}

	for _, w := range r.Withdrawals {
		b.Withdrawals = append(b.Withdrawals, Withdrawal{
			Index:          uint64(w.Index),
			ValidatorIndex: uint64(w.ValidatorIndex),
			Address:        w.Address,
			Amount:         uint64(w.Amount),
		})
	}

	txs, err := formatBlockTransactions(r.Transactions)
	if err != nil {
		return nil, fmt.Errorf("block %v: %w", r.Hash, err)
	}
	b.Transactions = txs
	return b, nil
}

// formatBlockTransactions decodes the transactions array, which holds either
// 32-byte hashes or transaction objects but never a mix of both.
func formatBlockTransactions(raw []json.RawMessage) (BlockTransactions, error) {
	var out BlockTransactions
	if len(raw) == 0 {
		out.Hashes = []common.Hash{}
		return out, nil
	}

	if len(raw[0]) > 0 && raw[0][0] == '"' {
		out.Hashes = make([]common.Hash, len(raw))
		for i, item := range raw {
			if err := json.Unmarshal(item, &out.Hashes[i]); err != nil {
				return out, fmt.Errorf("transaction hash %d: %w", i, err)
			}
		}
		return out, nil
	}

	out.Full = make([]*Transaction, len(raw))
	for i, item := range raw {
		var tx RPCTransaction
		if err := json.Unmarshal(item, &tx); err != nil {
			return out, fmt.Errorf("transaction %d: %w", i, err)
		}
		out.Full[i] = tx.Format()
	}
	return out, nil
}
