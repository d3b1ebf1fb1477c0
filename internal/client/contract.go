package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Panorama-Block/archive/internal/types"
)

// ErrZeroData is returned when a contract call that declares outputs returns
// no data, usually because there is no contract at the address.
var ErrZeroData = errors.New("contract call returned no data")

// ContractCall describes a call to a contract function
type ContractCall struct {
	Address      common.Address
	ABI          *abi.ABI
	FunctionName string
	Args         []interface{}
	Block        types.BlockSelector
	From         *common.Address

	// used by SimulateContract
	Value                *big.Int
	Gas                  *uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64
}

// SimulateResult is the outcome of SimulateContract. Request can be signed
// and sent to perform the simulated write.
type SimulateResult struct {
	Result  interface{}
	Request types.TransactionRequest
}

func (cc ContractCall) method() (abi.Method, error) {
	if cc.ABI == nil {
		return abi.Method{}, errors.New("contract call has no abi")
	}
	method, ok := cc.ABI.Methods[cc.FunctionName]
	if !ok {
		return abi.Method{}, fmt.Errorf("function %q not found in abi", cc.FunctionName)
	}
	return method, nil
}

func (cc ContractCall) request() (types.TransactionRequest, error) {
	if _, err := cc.method(); err != nil {
		return types.TransactionRequest{}, err
	}
	data, err := cc.ABI.Pack(cc.FunctionName, cc.Args...)
	if err != nil {
		return types.TransactionRequest{}, fmt.Errorf("failed to encode %s arguments: %w", cc.FunctionName, err)
	}
	to := cc.Address
	return types.TransactionRequest{
		From:                 cc.From,
		To:                   &to,
		Data:                 data,
		Value:                cc.Value,
		Gas:                  cc.Gas,
		Nonce:                cc.Nonce,
		GasPrice:             cc.GasPrice,
		MaxFeePerGas:         cc.MaxFeePerGas,
		MaxPriorityFeePerGas: cc.MaxPriorityFeePerGas,
	}, nil
}

func (cc ContractCall) fail(err error) error {
	return &ContractFunctionExecutionError{
		Address:      cc.Address,
		FunctionName: cc.FunctionName,
		Args:         cc.Args,
		Revert:       revertFromError(err, cc.ABI),
		Cause:        err,
	}
}

// unpack decodes return data. A single output is returned unwrapped.
func (cc ContractCall) unpack(data []byte) (interface{}, error) {
	method, err := cc.method()
	if err != nil {
		return nil, err
	}
	if len(method.Outputs) == 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, ErrZeroData
	}
	values, err := method.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", cc.FunctionName, err)
	}
	if len(values) == 1 {
		return values[0], nil
	}
	return values, nil
}

// ReadContract calls a view function and decodes its outputs
func (c *Client) ReadContract(ctx context.Context, cc ContractCall) (interface{}, error) {
	req, err := cc.request()
	if err != nil {
		return nil, err
	}
	// reads never carry value or fees
	req = types.TransactionRequest{From: req.From, To: req.To, Data: req.Data}

	data, err := c.Call(ctx, CallRequest{TransactionRequest: req, Block: cc.Block})
	if err != nil {
		return nil, cc.fail(err)
	}
	result, err := cc.unpack(data)
	if err != nil {
		return nil, cc.fail(err)
	}
	return result, nil
}

// ReadContractAs is ReadContract converting the result into T. Functions with
// several outputs are copied into a struct whose fields match output names.
func ReadContractAs[T any](ctx context.Context, c *Client, cc ContractCall) (T, error) {
	var out T
	result, err := c.ReadContract(ctx, cc)
	if err != nil {
		return out, err
	}
	method, _ := cc.method()
	if values, ok := result.([]interface{}); ok && len(method.Outputs) > 1 {
		if err := method.Outputs.Copy(&out, values); err != nil {
			return out, cc.fail(err)
		}
		return out, nil
	}
	if result == nil {
		return out, nil
	}
	if err := convertInto(result, &out); err != nil {
		return out, cc.fail(err)
	}
	return out, nil
}

// convertInto wraps abi.ConvertType, which panics on incompatible types
func convertInto[T any](in interface{}, out *T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cannot convert %T to %T: %v", in, *out, r)
		}
	}()
	converted, ok := abi.ConvertType(in, out).(*T)
	if !ok {
		return fmt.Errorf("cannot convert %T to %T", in, *out)
	}
	*out = *converted
	return nil
}

// SimulateContract executes a state changing function as a call and returns
// its result together with the request that would perform it.
func (c *Client) SimulateContract(ctx context.Context, cc ContractCall) (*SimulateResult, error) {
	req, err := cc.request()
	if err != nil {
		return nil, err
	}
	data, err := c.Call(ctx, CallRequest{TransactionRequest: req, Block: cc.Block})
	if err != nil {
		return nil, cc.fail(err)
	}
	result, err := cc.unpack(data)
	if err != nil {
		return nil, cc.fail(err)
	}
	return &SimulateResult{Result: result, Request: req}, nil
}
