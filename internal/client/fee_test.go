package client

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/rpctest"
	"github.com/Panorama-Block/archive/internal/types"
)

const gwei = 1_000_000_000

func TestEstimateFeesPerGas(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_getBlockByNumber", blockFixture(10)) // base fee 25 gwei
	server.Result("eth_maxPriorityFeePerGas", "0x3b9aca00")
	server.Result("eth_gasPrice", "0x2540be400")
	c := newTestClient(t, server)
	ctx := context.Background()

	fees, err := c.EstimateFeesPerGas(ctx, types.TxTypeEIP1559)
	require.NoError(t, err)
	assert.Equal(t, int64(31*gwei), fees.MaxFeePerGas.Int64())
	assert.Equal(t, int64(gwei), fees.MaxPriorityFeePerGas.Int64())
	assert.Nil(t, fees.GasPrice)

	legacy, err := c.EstimateFeesPerGas(ctx, types.TxTypeLegacy)
	require.NoError(t, err)
	assert.Equal(t, int64(12*gwei), legacy.GasPrice.Int64())
	assert.Nil(t, legacy.MaxFeePerGas)
}

func TestEstimateMaxPriorityFeePerGasFallback(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_getBlockByNumber", blockFixture(10))
	server.Result("eth_gasPrice", "0x649534e00") // 27 gwei
	c := newTestClient(t, server)

	tip, err := c.EstimateMaxPriorityFeePerGas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2*gwei), tip.Int64())

	server.Result("eth_gasPrice", "0x4a817c800") // 20 gwei, below the base fee
	tip, err = c.EstimateMaxPriorityFeePerGas(context.Background())
	require.NoError(t, err)
	assert.Zero(t, tip.Sign())
}

func TestGetFeeHistory(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_feeHistory", func(params []json.RawMessage) (interface{}, error) {
		assert.Equal(t, "0x2", stringParam(t, params, 0))
		assert.Equal(t, "latest", stringParam(t, params, 1))
		assert.JSONEq(t, `[25,75]`, string(params[2]))
		return map[string]interface{}{
			"oldestBlock":   "0x9",
			"baseFeePerGas": []string{"0x5d21dba00", "0x5d21dba00", "0x5d21dba00"},
			"gasUsedRatio":  []float64{0.5, 0.25},
			"reward":        [][]string{{"0x1", "0x2"}, {"0x3", "0x4"}},
		}, nil
	})
	c := newTestClient(t, server)

	history, err := c.GetFeeHistory(context.Background(), 2, types.Latest(), []float64{25, 75})
	require.NoError(t, err)
	assert.Equal(t, uint64(9), history.OldestBlock)
	assert.Len(t, history.BaseFeePerGas, 3)
	assert.Equal(t, int64(4), history.Reward[1][1].Int64())

	_, err = c.GetFeeHistory(context.Background(), 2, types.AtHash(testHash(1)), nil)
	assert.Error(t, err)
}
