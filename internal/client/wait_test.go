package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/rpctest"
	"github.com/Panorama-Block/archive/internal/types"
)

// advancingHead makes eth_blockNumber return start, start+1, ...
func advancingHead(server *rpctest.Server, start uint64) *atomic.Uint64 {
	var head atomic.Uint64
	head.Store(start)
	server.Handle("eth_blockNumber", func([]json.RawMessage) (interface{}, error) {
		return hexutil.EncodeUint64(head.Add(1) - 1), nil
	})
	return &head
}

func TestWaitForTransactionReceipt(t *testing.T) {
	server := rpctest.NewServer(t)
	hash := testHash(1)
	advancingHead(server, 10)
	server.Result("eth_getTransactionReceipt", receiptFixture(hash, 10))
	c := newTestClient(t, server)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receipt, err := c.WaitForTransactionReceipt(ctx, hash, WaitOptions{Confirmations: 3, PollingInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TransactionHash)

	latest, err := c.GetBlockNumber(ctx, WithCacheTime(0))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, uint64(12))
}

func TestWaitForTransactionReceiptDetectsReplacement(t *testing.T) {
	server := rpctest.NewServer(t)
	original := testHash(1)
	replacement := testHash(2)
	advancingHead(server, 20)

	var lookups atomic.Int32
	server.Handle("eth_getTransactionByHash", func([]json.RawMessage) (interface{}, error) {
		// seen pending once, then dropped from the pool
		if lookups.Add(1) == 1 {
			return txFixture(original, alice, &bob, 7, "0x1", "0x"), nil
		}
		return nil, nil
	})
	server.Handle("eth_getTransactionReceipt", func(params []json.RawMessage) (interface{}, error) {
		if stringParam(t, params, 0) == replacement.Hex() {
			return receiptFixture(replacement, 21), nil
		}
		return nil, nil
	})
	server.Handle("eth_getBlockByNumber", func(params []json.RawMessage) (interface{}, error) {
		n, err := hexutil.DecodeUint64(stringParam(t, params, 0))
		require.NoError(t, err)
		if n != 21 {
			return blockFixture(n, txFixture(testHash(n+100), bob, &alice, 1, "0x0", "0x")), nil
		}
		return blockFixture(n, txFixture(replacement, alice, &alice, 7, "0x0", "0x")), nil
	})
	c := newTestClient(t, server)

	var replaced Replacement
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	receipt, err := c.WaitForTransactionReceipt(ctx, original, WaitOptions{
		PollingInterval: 5 * time.Millisecond,
		OnReplaced:      func(r Replacement) { replaced = r },
	})
	require.NoError(t, err)
	assert.Equal(t, replacement, receipt.TransactionHash)
	assert.Equal(t, ReplacementCancelled, replaced.Reason)
	assert.Equal(t, original, replaced.ReplacedTransaction.Hash)
	assert.Equal(t, replacement, replaced.Transaction.Hash)
}

func TestWaitForTransactionReceiptTimeout(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_blockNumber", "0x1")
	server.Result("eth_getTransactionReceipt", nil)
	server.Result("eth_getTransactionByHash", nil)
	c := newTestClient(t, server)

	_, err := c.WaitForTransactionReceipt(context.Background(), testHash(1), WaitOptions{
		PollingInterval: 5 * time.Millisecond,
		Timeout:         50 * time.Millisecond,
	})
	var timeout *WaitForTransactionReceiptTimeoutError
	assert.True(t, errors.As(err, &timeout))
}

func TestWaitForTransactionReceiptGivesUpAfterRetries(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_blockNumber", func([]json.RawMessage) (interface{}, error) {
		return nil, errors.New("node unavailable")
	})
	c := newTestClient(t, server)

	_, err := c.WaitForTransactionReceipt(context.Background(), testHash(1), WaitOptions{
		PollingInterval: time.Millisecond,
		RetryCount:      2,
	})
	assert.ErrorContains(t, err, "node unavailable")
	assert.Equal(t, 3, server.Calls("eth_blockNumber"))
}

func TestClassifyReplacement(t *testing.T) {
	original := txFixture(testHash(1), alice, &bob, 1, "0x5", "0x01")
	raw := func(m map[string]interface{}) *types.Transaction {
		encoded, err := json.Marshal(m)
		require.NoError(t, err)
		var tx types.RPCTransaction
		require.NoError(t, json.Unmarshal(encoded, &tx))
		return tx.Format()
	}

	assert.Equal(t, ReplacementRepriced, classifyReplacement(raw(original), raw(txFixture(testHash(2), alice, &bob, 1, "0x5", "0x01"))))
	assert.Equal(t, ReplacementCancelled, classifyReplacement(raw(original), raw(txFixture(testHash(2), alice, &alice, 1, "0x0", "0x"))))
	assert.Equal(t, ReplacementReplaced, classifyReplacement(raw(original), raw(txFixture(testHash(2), alice, &bob, 1, "0x6", "0x01"))))
}
