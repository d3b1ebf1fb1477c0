package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionType is the EIP-2718 envelope type of a transaction
type TransactionType uint8

const (
	TxTypeLegacy  TransactionType = 0x0
	TxTypeEIP2930 TransactionType = 0x1
	TxTypeEIP1559 TransactionType = 0x2
	TxTypeEIP4844 TransactionType = 0x3
	TxTypeEIP7702 TransactionType = 0x4
)

func (t TransactionType) String() string {
	switch t {
	case TxTypeLegacy:
		return "legacy"
	case TxTypeEIP2930:
		return "eip2930"
	case TxTypeEIP1559:
		return "eip1559"
	case TxTypeEIP4844:
		return "eip4844"
	case TxTypeEIP7702:
		return "eip7702"
	default:
		return fmt.Sprintf("0x%x", uint8(t))
	}
}

func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTransactionType accepts both the names returned by String and hex type ids.
func ParseTransactionType(s string) (TransactionType, error) {
	switch s {
	case "legacy", "0x0", "0x00":
		return TxTypeLegacy, nil
	case "eip2930", "0x1", "0x01":
		return TxTypeEIP2930, nil
	case "eip1559", "0x2", "0x02":
		return TxTypeEIP1559, nil
	case "eip4844", "0x3", "0x03":
		return TxTypeEIP4844, nil
	case "eip7702", "0x4", "0x04":
		return TxTypeEIP7702, nil
	}
	return 0, fmt.Errorf("unknown transaction type %q", s)
}

// Authorization is an EIP-7702 signed delegation of an account to a contract
type Authorization struct {
	ChainID *big.Int       `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   uint64         `json:"nonce"`
	YParity uint8          `json:"yParity"`
	R       *big.Int       `json:"r"`
	S       *big.Int       `json:"s"`
}

// Transaction is a formatted transaction. Which of the fee and payload fields are
// set depends on Type.
type Transaction struct {
	Type             TransactionType `json:"type"`
	Hash             common.Hash     `json:"hash"`
	BlockHash        *common.Hash    `json:"blockHash"`
	BlockNumber      *uint64         `json:"blockNumber"`
	TransactionIndex *uint64         `json:"transactionIndex"`
	From             common.Address  `json:"from"`
	To               *common.Address `json:"to"`
	Nonce            uint64          `json:"nonce"`
	Gas              uint64          `json:"gas"`
	Value            *big.Int        `json:"value"`
	Input            hexutil.Bytes   `json:"input"`
	ChainID          *big.Int        `json:"chainId,omitempty"`

	// legacy and eip2930; also reported as effective price by some nodes for eip1559
	GasPrice *big.Int `json:"gasPrice,omitempty"`
	// eip2930 and later
	AccessList gethtypes.AccessList `json:"accessList,omitempty"`
	// eip1559 and later
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
	// eip4844
	MaxFeePerBlobGas    *big.Int      `json:"maxFeePerBlobGas,omitempty"`
	BlobVersionedHashes []common.Hash `json:"blobVersionedHashes,omitempty"`
	// eip7702
	AuthorizationList []Authorization `json:"authorizationList,omitempty"`

	V       *big.Int `json:"v"`
	R       *big.Int `json:"r"`
	S       *big.Int `json:"s"`
	YParity *uint8   `json:"yParity,omitempty"`
}

// Pending reports whether the transaction is not yet included in a block
func (t *Transaction) Pending() bool {
	return t.BlockNumber == nil
}

// RPCAuthorization is the wire form of Authorization
type RPCAuthorization struct {
	ChainID hexutil.Big    `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	YParity hexutil.Uint64 `json:"yParity"`
	R       hexutil.Big    `json:"r"`
	S       hexutil.Big    `json:"s"`
}

// RPCTransaction is a transaction object as returned by the eth_getTransaction* methods
type RPCTransaction struct {
	Type                 *hexutil.Uint64      `json:"type"`
	Hash                 common.Hash          `json:"hash"`
	BlockHash            *common.Hash         `json:"blockHash"`
	BlockNumber          *hexutil.Big         `json:"blockNumber"`
	TransactionIndex     *hexutil.Uint64      `json:"transactionIndex"`
	From                 common.Address       `json:"from"`
	To                   *common.Address      `json:"to"`
	Nonce                hexutil.Uint64       `json:"nonce"`
	Gas                  hexutil.Uint64       `json:"gas"`
	Value                *hexutil.Big         `json:"value"`
	Input                hexutil.Bytes        `json:"input"`
	ChainID              *hexutil.Big         `json:"chainId"`
	GasPrice             *hexutil.Big         `json:"gasPrice"`
	AccessList           gethtypes.AccessList `json:"accessList"`
	MaxFeePerGas         *hexutil.Big         `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big         `json:"maxPriorityFeePerGas"`
	MaxFeePerBlobGas     *hexutil.Big         `json:"maxFeePerBlobGas"`
	BlobVersionedHashes  []common.Hash        `json:"blobVersionedHashes"`
	AuthorizationList    []RPCAuthorization   `json:"authorizationList"`
	V                    *hexutil.Big         `json:"v"`
	R                    *hexutil.Big         `json:"r"`
	S                    *hexutil.Big         `json:"s"`
	YParity              *hexutil.Uint64      `json:"yParity"`
}

// Format converts the wire transaction into a Transaction
func (r *RPCTransaction) Format() *Transaction {
	tx := &Transaction{
		Hash:                 r.Hash,
		BlockHash:            r.BlockHash,
		BlockNumber:          bigToUint64Ptr(r.BlockNumber),
		TransactionIndex:     toUint64Ptr(r.TransactionIndex),
		From:                 r.From,
		To:                   r.To,
		Nonce:                uint64(r.Nonce),
		Gas:                  uint64(r.Gas),
		Value:                toBig(r.Value),
		Input:                r.Input,
		ChainID:              toBig(r.ChainID),
		GasPrice:             toBig(r.GasPrice),
		AccessList:           r.AccessList,
		MaxFeePerGas:         toBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas: toBig(r.MaxPriorityFeePerGas),
		MaxFeePerBlobGas:     toBig(r.MaxFeePerBlobGas),
		BlobVersionedHashes:  r.BlobVersionedHashes,
		V:                    toBig(r.V),
		R:                    toBig(r.R),
		S:                    toBig(r.S),
	}
	if tx.Value == nil {
		tx.Value = new(big.Int)
	}
	if r.Type != nil {
		tx.Type = TransactionType(*r.Type)
	}
	if r.YParity != nil {
		y := uint8(*r.YParity)
		tx.YParity = &y
	} else if tx.Type != TxTypeLegacy && tx.V != nil && tx.V.IsUint64() && tx.V.Uint64() <= 1 {
		y := uint8(tx.V.Uint64())
		tx.YParity = &y
	}
	if tx.ChainID == nil && tx.Type == TxTypeLegacy {
		tx.ChainID = chainIDFromV(tx.V)
	}
	for _, a := range r.AuthorizationList {
		tx.AuthorizationList = append(tx.AuthorizationList, Authorization{
			ChainID: new(big.Int).Set(a.ChainID.ToInt()),
			Address: a.Address,
			Nonce:   uint64(a.Nonce),
			YParity: uint8(a.YParity),
			R:       new(big.Int).Set(a.R.ToInt()),
			S:       new(big.Int).Set(a.S.ToInt()),
		})
	}
	return tx
}

// chainIDFromV recovers the EIP-155 chain id of a legacy signature. Pre-EIP-155
// signatures (v = 27 or 28) carry no chain id.
func chainIDFromV(v *big.Int) *big.Int {
	if v == nil || v.Cmp(big.NewInt(35)) < 0 {
		return nil
	}
	id := new(big.Int).Sub(v, big.NewInt(35))
	return id.Rsh(id, 1)
}
