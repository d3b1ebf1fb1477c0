package client

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Panorama-Block/archive/internal/types"
)

var (
	// ErrChainMismatch is returned when the node serves a different chain than configured
	ErrChainMismatch = errors.New("chain id mismatch")

	// ErrFilterNotSupported is returned when the node has no eth_newFilter support
	ErrFilterNotSupported = errors.New("node does not support filters")

	// ErrNoMulticall is returned by Multicall when the chain has no multicall3 deployment
	ErrNoMulticall = errors.New("chain has no multicall3 contract")
)

// BlockNotFoundError is returned when the node has no block for the selector
type BlockNotFoundError struct {
	Block types.BlockSelector
}

func (e *BlockNotFoundError) Error() string {
	return fmt.Sprintf("block %s could not be found", e.Block)
}

// TransactionNotFoundError is returned when a transaction lookup returns null
type TransactionNotFoundError struct {
	Query TransactionQuery
}

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("transaction %s could not be found", e.Query)
}

// TransactionReceiptNotFoundError is returned when the transaction is not mined
// or unknown to the node
type TransactionReceiptNotFoundError struct {
	Hash common.Hash
}

func (e *TransactionReceiptNotFoundError) Error() string {
	return fmt.Sprintf("receipt for transaction %s could not be found; it may not be processed yet", e.Hash.Hex())
}

// WaitForTransactionReceiptTimeoutError is returned when the wait timeout elapses
type WaitForTransactionReceiptTimeoutError struct {
	Hash common.Hash
}

func (e *WaitForTransactionReceiptTimeoutError) Error() string {
	return fmt.Sprintf("timed out while waiting for transaction %s to be confirmed", e.Hash.Hex())
}

// Revert is a decoded revert payload
type Revert struct {
	// Data is the raw revert payload.
	Data []byte
	// RawData holds revert data the node returned that is not valid hex.
	RawData string
	// Reason is the Error(string) message or the description of a panic code.
	Reason string
	// PanicCode is set for Panic(uint256) reverts.
	PanicCode *big.Int
	// ErrorName and ErrorArgs are set for custom errors found in the contract ABI.
	ErrorName string
	ErrorArgs interface{}
}

func (r *Revert) String() string {
	switch {
	case r == nil:
		return "execution reverted"
	case r.ErrorName != "":
		return fmt.Sprintf("reverted with custom error %s%v", r.ErrorName, r.ErrorArgs)
	case r.PanicCode != nil:
		return fmt.Sprintf("reverted with panic 0x%x: %s", r.PanicCode, r.Reason)
	case r.Reason != "":
		return fmt.Sprintf("reverted with reason %q", r.Reason)
	case len(r.Data) > 0:
		return "reverted with data " + hexutil.Encode(r.Data)
	case r.RawData != "":
		return "reverted with malformed data " + r.RawData
	default:
		return "execution reverted"
	}
}

// CallExecutionError is returned by Call when the node rejects the call
type CallExecutionError struct {
	Request types.TransactionRequest
	Revert  *Revert
	Cause   error
}

func (e *CallExecutionError) Error() string {
	var b strings.Builder
	b.WriteString("call failed")
	if e.Request.To != nil {
		b.WriteString(" to " + e.Request.To.Hex())
	}
	if e.Revert != nil {
		b.WriteString(": " + e.Revert.String())
	} else if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}
	return b.String()
}

func (e *CallExecutionError) Unwrap() error { return e.Cause }

// ContractFunctionExecutionError is returned by ReadContract and SimulateContract
type ContractFunctionExecutionError struct {
	Address      common.Address
	FunctionName string
	Args         []interface{}
	Revert       *Revert
	Cause        error
}

func (e *ContractFunctionExecutionError) Error() string {
	msg := fmt.Sprintf("contract function %q on %s", e.FunctionName, e.Address.Hex())
	if e.Revert != nil {
		return msg + " " + e.Revert.String()
	}
	return fmt.Sprintf("%s failed: %v", msg, e.Cause)
}

func (e *ContractFunctionExecutionError) Unwrap() error { return e.Cause }
