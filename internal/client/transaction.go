package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Panorama-Block/archive/internal/types"
)

// TransactionQuery selects a transaction either by hash or by its position in
// a block (BlockHash, BlockNumber or BlockTag together with Index).
type TransactionQuery struct {
	Hash        *common.Hash
	BlockHash   *common.Hash
	BlockNumber *uint64
	BlockTag    types.BlockTag
	Index       uint64
}

// ByHash selects a transaction by hash
func ByHash(hash common.Hash) TransactionQuery {
	return TransactionQuery{Hash: &hash}
}

func (q TransactionQuery) String() string {
	switch {
	case q.Hash != nil:
		return q.Hash.Hex()
	case q.BlockHash != nil:
		return fmt.Sprintf("at index %d of block %s", q.Index, q.BlockHash.Hex())
	case q.BlockNumber != nil:
		return fmt.Sprintf("at index %d of block %d", q.Index, *q.BlockNumber)
	default:
		tag := q.BlockTag
		if tag == "" {
			tag = types.BlockLatest
		}
		return fmt.Sprintf("at index %d of %s block", q.Index, tag)
	}
}

// GetTransaction returns a transaction by hash or block position
func (c *Client) GetTransaction(ctx context.Context, q TransactionQuery) (*types.Transaction, error) {
	var raw *types.RPCTransaction
	var err error
	index := hexutil.Uint64(q.Index)

	switch {
	case q.Hash != nil:
		err = c.call(ctx, &raw, "eth_getTransactionByHash", *q.Hash)
	case q.BlockHash != nil:
		err = c.call(ctx, &raw, "eth_getTransactionByBlockHashAndIndex", *q.BlockHash, index)
	case q.BlockNumber != nil:
		err = c.call(ctx, &raw, "eth_getTransactionByBlockNumberAndIndex", hexutil.EncodeUint64(*q.BlockNumber), index)
	default:
		tag := q.BlockTag
		if tag == "" {
			tag = types.BlockLatest
		}
		err = c.call(ctx, &raw, "eth_getTransactionByBlockNumberAndIndex", string(tag), index)
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &TransactionNotFoundError{Query: q}
	}
	return raw.Format(), nil
}

// GetTransactionReceipt returns the receipt of a mined transaction
func (c *Client) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.TransactionReceipt, error) {
	var raw *types.RPCTransactionReceipt
	if err := c.call(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, &TransactionReceiptNotFoundError{Hash: hash}
	}
	return raw.Format(), nil
}

// GetTransactionConfirmations returns how many blocks deep the transaction is,
// counting its own block. Pending or unknown transactions have 0 confirmations.
func (c *Client) GetTransactionConfirmations(ctx context.Context, hash common.Hash) (uint64, error) {
	receipt, err := c.GetTransactionReceipt(ctx, hash)
	var notFound *TransactionReceiptNotFoundError
	if errors.As(err, &notFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.ReceiptConfirmations(ctx, receipt)
}

// ReceiptConfirmations is GetTransactionConfirmations for an already fetched receipt
func (c *Client) ReceiptConfirmations(ctx context.Context, receipt *types.TransactionReceipt) (uint64, error) {
	latest, err := c.GetBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return confirmations(latest, receipt.BlockNumber), nil
}

func confirmations(latest, mined uint64) uint64 {
	if latest < mined {
		return 0
	}
	return latest - mined + 1
}

// GetTransactionCount returns the nonce of address at the given block
func (c *Client) GetTransactionCount(ctx context.Context, address common.Address, block types.BlockSelector) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, "eth_getTransactionCount", address, block.Param()); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// SendRawTransaction broadcasts a signed, RLP or EIP-2718 encoded transaction
// and returns its hash. Payloads that do not decode are rejected locally.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var tx gethtypes.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("invalid serialized transaction: %w", err)
	}

	var hash common.Hash
	if err := c.call(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	if hash != tx.Hash() {
		c.logger.Warn("node returned unexpected transaction hash")
	}
	return hash, nil
}

// SendTransaction serializes a signed transaction and broadcasts it
func (c *Client) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) (common.Hash, error) {
	if id := tx.ChainId(); c.chain.ID != 0 && id != nil && id.Sign() != 0 && id.Uint64() != c.chain.ID {
		return common.Hash{}, fmt.Errorf("%w: transaction signed for chain %d, client is on %d", ErrChainMismatch, id.Uint64(), c.chain.ID)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return c.SendRawTransaction(ctx, raw)
}
