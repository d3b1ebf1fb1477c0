package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TransactionRequest is a transaction that has not been signed yet, used for
// eth_call, eth_estimateGas and contract simulation. Unset fields are left to
// the node.
type TransactionRequest struct {
	Type                 *TransactionType
	From                 *common.Address
	To                   *common.Address
	Data                 []byte
	Value                *big.Int
	Gas                  *uint64
	Nonce                *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerBlobGas     *big.Int
	AccessList           gethtypes.AccessList
	BlobVersionedHashes  []common.Hash
	AuthorizationList    []Authorization
}

// InferType determines the envelope type from the fields that are set.
func (r *TransactionRequest) InferType() TransactionType {
	switch {
	case r.Type != nil:
		return *r.Type
	case len(r.AuthorizationList) > 0:
		return TxTypeEIP7702
	case len(r.BlobVersionedHashes) > 0 || r.MaxFeePerBlobGas != nil:
		return TxTypeEIP4844
	case r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil:
		return TxTypeEIP1559
	case r.GasPrice != nil && r.AccessList != nil:
		return TxTypeEIP2930
	case r.GasPrice != nil:
		return TxTypeLegacy
	default:
		return TxTypeEIP1559
	}
}

// Validate checks the fee and payload fields for consistency with the
// inferred type.
func (r *TransactionRequest) Validate() error {
	txType := r.InferType()

	if r.GasPrice != nil && (r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil) {
		return &InvalidRequestError{Field: "gasPrice", Reason: "cannot be combined with maxFeePerGas or maxPriorityFeePerGas"}
	}
	for name, v := range map[string]*big.Int{
		"value":                r.Value,
		"gasPrice":             r.GasPrice,
		"maxFeePerGas":         r.MaxFeePerGas,
		"maxPriorityFeePerGas": r.MaxPriorityFeePerGas,
		"maxFeePerBlobGas":     r.MaxFeePerBlobGas,
	} {
		if v == nil {
			continue
		}
		if v.Sign() < 0 {
			return &InvalidRequestError{Field: name, Reason: "must not be negative"}
		}
		if v.Cmp(math.MaxBig256) > 0 {
			return &InvalidRequestError{Field: name, Reason: "exceeds 2^256-1"}
		}
	}
	if r.MaxFeePerGas != nil && r.MaxPriorityFeePerGas != nil && r.MaxPriorityFeePerGas.Cmp(r.MaxFeePerGas) > 0 {
		return &InvalidRequestError{Field: "maxPriorityFeePerGas", Reason: "cannot be higher than maxFeePerGas"}
	}

	switch txType {
	case TxTypeLegacy, TxTypeEIP2930:
		if r.MaxFeePerBlobGas != nil || len(r.BlobVersionedHashes) > 0 || len(r.AuthorizationList) > 0 {
			return &InvalidRequestError{Field: "type", Reason: txType.String() + " transactions cannot carry blobs or authorizations"}
		}
	case TxTypeEIP4844:
		if r.To == nil {
			return &InvalidRequestError{Field: "to", Reason: "eip4844 transactions cannot create contracts"}
		}
		if len(r.BlobVersionedHashes) == 0 {
			return &InvalidRequestError{Field: "blobVersionedHashes", Reason: "eip4844 transactions need at least one blob"}
		}
		for _, h := range r.BlobVersionedHashes {
			if h[0] != 0x01 {
				return &InvalidRequestError{Field: "blobVersionedHashes", Reason: "unsupported versioned hash version " + hexutil.EncodeUint64(uint64(h[0]))}
			}
		}
	case TxTypeEIP7702:
		if r.To == nil {
			return &InvalidRequestError{Field: "to", Reason: "eip7702 transactions cannot create contracts"}
		}
	}
	return nil
}

// RPCTransactionRequest is the wire form of a TransactionRequest
type RPCTransactionRequest struct {
	Type                 *hexutil.Uint64      `json:"type,omitempty"`
	From                 *common.Address      `json:"from,omitempty"`
	To                   *common.Address      `json:"to,omitempty"`
	Data                 hexutil.Bytes        `json:"data,omitempty"`
	Value                *hexutil.Big         `json:"value,omitempty"`
	Gas                  *hexutil.Uint64      `json:"gas,omitempty"`
	Nonce                *hexutil.Uint64      `json:"nonce,omitempty"`
	GasPrice             *hexutil.Big         `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big         `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big         `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerBlobGas     *hexutil.Big         `json:"maxFeePerBlobGas,omitempty"`
	AccessList           gethtypes.AccessList `json:"accessList,omitempty"`
	BlobVersionedHashes  []common.Hash        `json:"blobVersionedHashes,omitempty"`
	AuthorizationList    []RPCAuthorization   `json:"authorizationList,omitempty"`
}

// ToRPC renders the request for the node. The type is only sent when it was
// set explicitly or can be inferred from fee or payload fields.
func (r *TransactionRequest) ToRPC() *RPCTransactionRequest {
	out := &RPCTransactionRequest{
		From:                 r.From,
		To:                   r.To,
		Data:                 r.Data,
		Value:                fromBig(r.Value),
		Gas:                  fromUint64Ptr(r.Gas),
		Nonce:                fromUint64Ptr(r.Nonce),
		GasPrice:             fromBig(r.GasPrice),
		MaxFeePerGas:         fromBig(r.MaxFeePerGas),
		MaxPriorityFeePerGas: fromBig(r.MaxPriorityFeePerGas),
		MaxFeePerBlobGas:     fromBig(r.MaxFeePerBlobGas),
		AccessList:           r.AccessList,
		BlobVersionedHashes:  r.BlobVersionedHashes,
	}
	if r.hasTypeHint() {
		t := hexutil.Uint64(r.InferType())
		out.Type = &t
	}
	for _, a := range r.AuthorizationList {
		out.AuthorizationList = append(out.AuthorizationList, RPCAuthorization{
			ChainID: hexutil.Big(*orZero(a.ChainID)),
			Address: a.Address,
			Nonce:   hexutil.Uint64(a.Nonce),
			YParity: hexutil.Uint64(a.YParity),
			R:       hexutil.Big(*orZero(a.R)),
			S:       hexutil.Big(*orZero(a.S)),
		})
	}
	return out
}

func (r *TransactionRequest) hasTypeHint() bool {
	return r.Type != nil || r.GasPrice != nil || r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil ||
		r.MaxFeePerBlobGas != nil || r.AccessList != nil || len(r.BlobVersionedHashes) > 0 || len(r.AuthorizationList) > 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
