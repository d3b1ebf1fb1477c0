package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

// baseFeeMultiplier is applied to the base fee (or gas price) to leave room for
// fee growth before inclusion, as a numerator over 10.
const baseFeeMultiplier = 12

// GetGasPrice returns the node's legacy gas price in wei
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	var price hexutil.Big
	if err := c.call(ctx, &price, "eth_gasPrice"); err != nil {
		return nil, err
	}
	return price.ToInt(), nil
}

// GetFeeHistory returns base fees and priority fee percentiles for blockCount
// blocks ending at newest.
func (c *Client) GetFeeHistory(ctx context.Context, blockCount uint64, newest types.BlockSelector, rewardPercentiles []float64) (*types.FeeHistory, error) {
	newestParam, err := newest.NumberOrTag()
	if err != nil {
		return nil, err
	}
	if rewardPercentiles == nil {
		rewardPercentiles = []float64{}
	}

	var raw types.RPCFeeHistory
	if err := c.call(ctx, &raw, "eth_feeHistory", hexutil.Uint64(blockCount), newestParam, rewardPercentiles); err != nil {
		return nil, err
	}
	return raw.Format(), nil
}

// EstimateMaxPriorityFeePerGas returns a priority fee suggestion. Nodes without
// eth_maxPriorityFeePerGas fall back to gasPrice - baseFee.
func (c *Client) EstimateMaxPriorityFeePerGas(ctx context.Context) (*big.Int, error) {
	var tip hexutil.Big
	err := c.call(ctx, &tip, "eth_maxPriorityFeePerGas")
	if err == nil {
		return tip.ToInt(), nil
	}

	var rpcErr *transport.RPCError
	if !errors.As(err, &rpcErr) {
		return nil, err
	}

	block, err := c.GetBlock(ctx, BlockQuery{})
	if err != nil {
		return nil, err
	}
	if block.BaseFeePerGas == nil {
		return nil, errors.New("chain does not support eip1559 fees")
	}
	gasPrice, err := c.GetGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	tipFallback := new(big.Int).Sub(gasPrice, block.BaseFeePerGas)
	if tipFallback.Sign() < 0 {
		tipFallback.SetInt64(0)
	}
	return tipFallback, nil
}

// EstimateFeesPerGas returns fee values for txType. 1559 style types get
// maxFeePerGas = baseFee * 1.2 + maxPriorityFeePerGas; legacy and eip2930 get
// gasPrice * 1.2.
func (c *Client) EstimateFeesPerGas(ctx context.Context, txType types.TransactionType) (*types.FeeValues, error) {
	switch txType {
	case types.TxTypeLegacy, types.TxTypeEIP2930:
		gasPrice, err := c.GetGasPrice(ctx)
		if err != nil {
			return nil, err
		}
		return &types.FeeValues{GasPrice: scaleFee(gasPrice)}, nil
	case types.TxTypeEIP1559, types.TxTypeEIP4844, types.TxTypeEIP7702:
	default:
		return nil, fmt.Errorf("cannot estimate fees for transaction type %s", txType)
	}

	block, err := c.GetBlock(ctx, BlockQuery{})
	if err != nil {
		return nil, err
	}
	if block.BaseFeePerGas == nil {
		return nil, errors.New("chain does not support eip1559 fees")
	}
	tip, err := c.EstimateMaxPriorityFeePerGas(ctx)
	if err != nil {
		return nil, err
	}

	maxFee := scaleFee(block.BaseFeePerGas)
	maxFee.Add(maxFee, tip)
	return &types.FeeValues{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

func scaleFee(v *big.Int) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(baseFeeMultiplier))
	return out.Div(out, big.NewInt(10))
}
