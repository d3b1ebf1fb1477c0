package client

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

// CallRequest is a message call executed against the state of Block
type CallRequest struct {
	types.TransactionRequest
	Block types.BlockSelector
}

// Call executes a message call without creating a transaction and returns the
// return data. Reverts are returned as *CallExecutionError.
func (c *Client) Call(ctx context.Context, req CallRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var result hexutil.Bytes
	if err := c.call(ctx, &result, "eth_call", req.ToRPC(), req.Block.Param()); err != nil {
		return nil, executionError(req.TransactionRequest, err)
	}
	return result, nil
}

// EstimateGas returns the gas the node estimates req needs. An unset Block
// lets the node pick its default.
func (c *Client) EstimateGas(ctx context.Context, req types.TransactionRequest, block types.BlockSelector) (uint64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	args := []interface{}{req.ToRPC()}
	if !block.IsZero() {
		args = append(args, block.Param())
	}
	var gas hexutil.Uint64
	if err := c.call(ctx, &gas, "eth_estimateGas", args...); err != nil {
		return 0, executionError(req, err)
	}
	return uint64(gas), nil
}

// executionError wraps node errors for a call. Transport level failures are
// returned unchanged so callers can tell them apart from execution failures.
func executionError(req types.TransactionRequest, err error) error {
	var rpcErr *transport.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	out := &CallExecutionError{Request: req, Cause: err}
	if rpcErr.Reverted() {
		hex := rpcErr.RevertData()
		data, decodeErr := hexutil.Decode(hex)
		if hex != "" && decodeErr != nil {
			out.Revert = &Revert{RawData: hex}
			return out
		}
		out.Revert = decodeRevert(data, nil)
	}
	return out
}
