package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/chain"
	"github.com/Panorama-Block/archive/internal/rpctest"
	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

var (
	alice = common.HexToAddress("0xa7d9ddbe1f17865597fbd27ec712455208b6b76d")
	bob   = common.HexToAddress("0xf02c1c8e6114b1dbe8937a39260b5b0a374432bb")
)

func newTestClient(t *testing.T, server *rpctest.Server) *Client {
	t.Helper()
	c, err := New(context.Background(), Options{
		Chain:  chain.Avalanche,
		RPCURL: server.URL,
		Transport: transport.Options{
			Timeout:    time.Second,
			RetryDelay: time.Millisecond,
		},
		PollingInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func testHash(n uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(n + 0x1000))
}

func blockFixture(number uint64, txs ...interface{}) map[string]interface{} {
	if txs == nil {
		txs = []interface{}{}
	}
	return map[string]interface{}{
		"number":        hexutil.EncodeUint64(number),
		"hash":          testHash(number),
		"parentHash":    testHash(number - 1),
		"miner":         alice,
		"timestamp":     hexutil.EncodeUint64(1700000000 + number*2),
		"gasLimit":      "0x1c9c380",
		"gasUsed":       "0x5208",
		"baseFeePerGas": "0x5d21dba00",
		"uncles":        []string{},
		"transactions":  txs,
	}
}

func txFixture(hash common.Hash, from common.Address, to *common.Address, nonce uint64, value string, input string) map[string]interface{} {
	tx := map[string]interface{}{
		"type":                 "0x2",
		"hash":                 hash,
		"from":                 from,
		"nonce":                hexutil.EncodeUint64(nonce),
		"gas":                  "0x5208",
		"value":                value,
		"input":                input,
		"chainId":              "0xa86a",
		"maxFeePerGas":         "0x6fc23ac00",
		"maxPriorityFeePerGas": "0x3b9aca00",
		"v":                    "0x0",
		"r":                    "0x1",
		"s":                    "0x1",
	}
	if to != nil {
		tx["to"] = *to
	}
	return tx
}

func receiptFixture(hash common.Hash, block uint64) map[string]interface{} {
	return map[string]interface{}{
		"transactionHash":   hash,
		"transactionIndex":  "0x0",
		"blockHash":         testHash(block),
		"blockNumber":       hexutil.EncodeUint64(block),
		"from":              alice,
		"to":                bob,
		"cumulativeGasUsed": "0x5208",
		"gasUsed":           "0x5208",
		"effectiveGasPrice": "0x5d21dba00",
		"logs":              []interface{}{},
		"logsBloom":         "0x00",
		"status":            "0x1",
		"type":              "0x2",
	}
}

func stringParam(t *testing.T, params []json.RawMessage, i int) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(params[i], &s))
	return s
}

func TestNewRejectsChainMismatch(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_chainId", "0x1")

	_, err := New(context.Background(), Options{
		Chain:         chain.Avalanche,
		RPCURL:        server.URL,
		VerifyChainID: true,
	})
	assert.ErrorIs(t, err, ErrChainMismatch)
}

func TestNewRejectsMissingURL(t *testing.T) {
	_, err := New(context.Background(), Options{Chain: chain.Chain{ID: 7, Name: "Empty"}})
	assert.ErrorContains(t, err, "no rpc url")
}

func TestGetChainID(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_chainId", "0xa86a")
	c := newTestClient(t, server)

	id, err := c.GetChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(43114), id)
}

func TestGetBlockNumberIsCached(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_blockNumber", "0x2a")
	c := newTestClient(t, server)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := c.GetBlockNumber(ctx, WithCacheTime(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), n)
	}
	assert.Equal(t, 1, server.Calls("eth_blockNumber"))

	_, err := c.GetBlockNumber(ctx, WithCacheTime(0))
	require.NoError(t, err)
	assert.Equal(t, 2, server.Calls("eth_blockNumber"))
}

func TestGetBlockNumberSharedRequestSurvivesCallerCancel(t *testing.T) {
	server := rpctest.NewServer(t)
	release := make(chan struct{})
	server.Handle("eth_blockNumber", func([]json.RawMessage) (interface{}, error) {
		<-release
		return "0x2a", nil
	})
	c := newTestClient(t, server)

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetBlockNumber(first, WithCacheTime(0))
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return server.Calls("eth_blockNumber") == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		n   uint64
		err error
	}
	second := make(chan result, 1)
	go func() {
		n, err := c.GetBlockNumber(context.Background(), WithCacheTime(0))
		second <- result{n, err}
	}()
	time.Sleep(30 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, uint64(42), res.n)
	assert.Equal(t, 1, server.Calls("eth_blockNumber"))
}

func TestGetBlock(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_getBlockByNumber", func(params []json.RawMessage) (interface{}, error) {
		var full bool
		require.NoError(t, json.Unmarshal(params[1], &full))
		switch stringParam(t, params, 0) {
		case "latest":
			return blockFixture(100, testHash(1)), nil
		case "0x63":
			if full {
				return blockFixture(99, txFixture(testHash(2), alice, &bob, 1, "0x0", "0x")), nil
			}
			return blockFixture(99), nil
		default:
			return nil, nil
		}
	})
	server.Handle("eth_getBlockByHash", func(params []json.RawMessage) (interface{}, error) {
		return blockFixture(98), nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	latest, err := c.GetBlock(ctx, BlockQuery{})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), latest.NumberU64())
	assert.False(t, latest.Transactions.IsFull())
	assert.Equal(t, []common.Hash{testHash(1)}, latest.Transactions.TransactionHashes())

	number := uint64(99)
	full, err := c.GetBlock(ctx, BlockQuery{Number: &number, IncludeTransactions: true})
	require.NoError(t, err)
	require.True(t, full.Transactions.IsFull())
	assert.Equal(t, alice, full.Transactions.Full[0].From)
	assert.Equal(t, types.TxTypeEIP1559, full.Transactions.Full[0].Type)

	hash := testHash(98)
	byHash, err := c.GetBlock(ctx, BlockQuery{Hash: &hash})
	require.NoError(t, err)
	assert.Equal(t, uint64(98), byHash.NumberU64())

	missing := uint64(1000)
	_, err = c.GetBlock(ctx, BlockQuery{Number: &missing})
	var notFound *BlockNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "block 1000 could not be found", err.Error())

	_, err = c.GetBlock(ctx, BlockQuery{Number: &number, Tag: types.BlockSafe})
	assert.Error(t, err)
}

func TestGetBlockTransactionCount(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Result("eth_getBlockTransactionCountByNumber", "0x7")
	c := newTestClient(t, server)

	count, err := c.GetBlockTransactionCount(context.Background(), BlockQuery{Tag: types.BlockFinalized})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), count)
}

func TestGetTransaction(t *testing.T) {
	server := rpctest.NewServer(t)
	known := testHash(5)
	server.Handle("eth_getTransactionByHash", func(params []json.RawMessage) (interface{}, error) {
		if stringParam(t, params, 0) == known.Hex() {
			return txFixture(known, alice, &bob, 3, "0xde0b6b3a7640000", "0x"), nil
		}
		return nil, nil
	})
	server.Handle("eth_getTransactionByBlockNumberAndIndex", func(params []json.RawMessage) (interface{}, error) {
		assert.Equal(t, "0xa", stringParam(t, params, 0))
		assert.Equal(t, "0x2", stringParam(t, params, 1))
		return txFixture(testHash(6), bob, nil, 0, "0x0", "0x6080"), nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	tx, err := c.GetTransaction(ctx, ByHash(known))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tx.Nonce)
	assert.Equal(t, "1000000000000000000", tx.Value.String())
	assert.True(t, tx.Pending())

	block := uint64(10)
	created, err := c.GetTransaction(ctx, TransactionQuery{BlockNumber: &block, Index: 2})
	require.NoError(t, err)
	assert.Nil(t, created.To)

	_, err = c.GetTransaction(ctx, ByHash(testHash(7)))
	var notFound *TransactionNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestTransactionConfirmations(t *testing.T) {
	server := rpctest.NewServer(t)
	mined := testHash(1)
	server.Result("eth_blockNumber", "0x14")
	server.Handle("eth_getTransactionReceipt", func(params []json.RawMessage) (interface{}, error) {
		if stringParam(t, params, 0) == mined.Hex() {
			return receiptFixture(mined, 18), nil
		}
		return nil, nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	receipt, err := c.GetTransactionReceipt(ctx, mined)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptSuccess, receipt.Status)

	n, err := c.GetTransactionConfirmations(ctx, mined)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	n, err = c.GetTransactionConfirmations(ctx, testHash(2))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = c.GetTransactionReceipt(ctx, testHash(2))
	var notFound *TransactionReceiptNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestStateReads(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_getBalance", func(params []json.RawMessage) (interface{}, error) {
		assert.Equal(t, "0x10", stringParam(t, params, 1))
		return "0xde0b6b3a7640000", nil
	})
	server.Result("eth_getCode", "0x6080604052")
	server.Result("eth_getStorageAt", "0x0000000000000000000000000000000000000000000000000000000000000005")
	server.Result("eth_getTransactionCount", "0x9")
	c := newTestClient(t, server)
	ctx := context.Background()

	balance, err := c.GetBalance(ctx, alice, types.AtNumber(16))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", balance.String())

	code, err := c.GetCode(ctx, bob, types.Latest())
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, code)

	word, err := c.GetStorageAt(ctx, bob, common.Hash{}, types.Latest())
	require.NoError(t, err)
	assert.Equal(t, int64(5), word.Big().Int64())

	nonce, err := c.GetTransactionCount(ctx, alice, types.Pending())
	require.NoError(t, err)
	assert.Equal(t, uint64(9), nonce)
}

func signedTransaction(t *testing.T, chainID int64) *gethtypes.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   big.NewInt(chainID),
		Nonce:     1,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(30_000_000_000),
		Gas:       21000,
		To:        &bob,
		Value:     big.NewInt(1),
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(big.NewInt(chainID)), key)
	require.NoError(t, err)
	return signed
}

func TestSendRawTransaction(t *testing.T) {
	server := rpctest.NewServer(t)
	tx := signedTransaction(t, 43114)
	server.Handle("eth_sendRawTransaction", func(params []json.RawMessage) (interface{}, error) {
		raw, err := hexutil.Decode(stringParam(t, params, 0))
		require.NoError(t, err)
		var decoded gethtypes.Transaction
		require.NoError(t, decoded.UnmarshalBinary(raw))
		return decoded.Hash(), nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	hash, err := c.SendTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Hash(), hash)

	_, err = c.SendRawTransaction(ctx, []byte{0x02, 0xff})
	assert.ErrorContains(t, err, "invalid serialized transaction")
	assert.Equal(t, 1, server.Calls("eth_sendRawTransaction"))

	_, err = c.SendTransaction(ctx, signedTransaction(t, 1))
	assert.ErrorIs(t, err, ErrChainMismatch)
}
