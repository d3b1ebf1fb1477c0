package client

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/Panorama-Block/archive/internal/types"
)

const multicall3ABI = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var multicall3, _ = ParseABI(multicall3ABI)

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

// MulticallOptions configures Multicall
type MulticallOptions struct {
	// AllowFailure returns per call errors instead of failing the whole batch.
	AllowFailure bool
	Block        types.BlockSelector
	// ChunkSize splits the calls into several aggregate3 calls made
	// concurrently. Zero sends a single call.
	ChunkSize int
	// Address overrides the chain's multicall3 deployment.
	Address *common.Address
}

// MulticallResult is the outcome of one call of a Multicall
type MulticallResult struct {
	Result interface{}
	Err    error
}

// Multicall batches contract reads into aggregate3 calls on the chain's
// Multicall3 contract. Results are returned in call order.
func (c *Client) Multicall(ctx context.Context, calls []ContractCall, opts MulticallOptions) ([]MulticallResult, error) {
	address, err := c.multicallAddress(opts)
	if err != nil {
		return nil, err
	}

	encoded := make([]call3, len(calls))
	for i, cc := range calls {
		req, err := cc.request()
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		encoded[i] = call3{Target: cc.Address, AllowFailure: opts.AllowFailure, CallData: req.Data}
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 || chunkSize > len(encoded) {
		chunkSize = len(encoded)
	}

	results := make([]MulticallResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(encoded); start += chunkSize {
		end := min(start+chunkSize, len(encoded))
		g.Go(func() error {
			raw, err := c.aggregate3(gctx, address, encoded[start:end], opts.Block)
			if err != nil {
				return err
			}
			for i, r := range raw {
				results[start+i] = decodeMulticallResult(calls[start+i], r)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !opts.AllowFailure {
		for _, r := range results {
			if r.Err != nil {
				return nil, r.Err
			}
		}
	}
	return results, nil
}

func (c *Client) multicallAddress(opts MulticallOptions) (common.Address, error) {
	if opts.Address != nil {
		return *opts.Address, nil
	}
	address, ok := c.chain.Multicall3()
	if !ok {
		return common.Address{}, ErrNoMulticall
	}
	return address, nil
}

func (c *Client) aggregate3(ctx context.Context, address common.Address, calls []call3, block types.BlockSelector) ([]result3, error) {
	data, err := multicall3.Pack("aggregate3", calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode aggregate3: %w", err)
	}
	out, err := c.Call(ctx, CallRequest{
		TransactionRequest: types.TransactionRequest{To: &address, Data: data},
		Block:              block,
	})
	if err != nil {
		return nil, err
	}

	values, err := multicall3.Unpack("aggregate3", out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode aggregate3 result: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("aggregate3 returned %d values", len(values))
	}
	var results []result3
	if err := convertInto(values[0], &results); err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("aggregate3 returned %d results for %d calls", len(results), len(calls))
	}
	return results, nil
}

func decodeMulticallResult(cc ContractCall, r result3) MulticallResult {
	if !r.Success {
		return MulticallResult{Err: &ContractFunctionExecutionError{
			Address:      cc.Address,
			FunctionName: cc.FunctionName,
			Args:         cc.Args,
			Revert:       decodeRevert(r.ReturnData, cc.ABI),
			Cause:        fmt.Errorf("call to %s failed", cc.Address.Hex()),
		}}
	}
	result, err := cc.unpack(r.ReturnData)
	if err != nil {
		return MulticallResult{Err: cc.fail(err)}
	}
	return MulticallResult{Result: result}
}
