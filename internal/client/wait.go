package client

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/types"
)

const (
	defaultWaitRetryCount = 6
	// maxReplacementScan bounds how many blocks are searched for a replacement
	// transaction in one poll
	maxReplacementScan = 64
)

// ReplacementReason classifies a replaced transaction
type ReplacementReason string

const (
	// ReplacementRepriced: same call resent with different fees
	ReplacementRepriced ReplacementReason = "repriced"
	// ReplacementCancelled: zero value transfer to the sender itself
	ReplacementCancelled ReplacementReason = "cancelled"
	ReplacementReplaced  ReplacementReason = "replaced"
)

// Replacement describes the transaction that took the awaited one's nonce
type Replacement struct {
	Reason              ReplacementReason
	ReplacedTransaction *types.Transaction
	Transaction         *types.Transaction
	Receipt             *types.TransactionReceipt
}

// WaitOptions configures WaitForTransactionReceipt
type WaitOptions struct {
	// Confirmations is the number of blocks, counting the inclusion block, the
	// transaction must be buried under. Defaults to 1.
	Confirmations   uint64
	PollingInterval time.Duration
	// Timeout of zero waits until ctx is done.
	Timeout time.Duration
	// RetryCount is how many consecutive failed polls are tolerated.
	RetryCount int
	OnReplaced func(Replacement)
}

type receiptWaiter struct {
	c    *Client
	hash common.Hash
	opts WaitOptions

	tx          *types.Transaction
	receipt     *types.TransactionReceipt
	replacement *Replacement
	lastScanned uint64
	failures    int
}

// WaitForTransactionReceipt polls until the transaction is mined and has the
// requested number of confirmations. If another transaction from the same
// sender with the same nonce is mined instead, OnReplaced is called and the
// replacement's receipt is returned.
func (c *Client) WaitForTransactionReceipt(ctx context.Context, hash common.Hash, opts WaitOptions) (*types.TransactionReceipt, error) {
	if opts.Confirmations == 0 {
		opts.Confirmations = 1
	}
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = c.pollingInterval
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultWaitRetryCount
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	w := &receiptWaiter{c: c, hash: hash, opts: opts}
	ticker := time.NewTicker(opts.PollingInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.poll(waitCtx)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil {
			if ctx.Err() == nil && waitCtx.Err() != nil {
				return nil, &WaitForTransactionReceiptTimeoutError{Hash: hash}
			}
			w.failures++
			if w.failures > opts.RetryCount || ctx.Err() != nil {
				return nil, err
			}
			c.logger.Debug("receipt poll failed", zap.Stringer("hash", hash), zap.Int("failures", w.failures), zap.Error(err))
		} else {
			w.failures = 0
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-waitCtx.Done():
			return nil, &WaitForTransactionReceiptTimeoutError{Hash: hash}
		case <-ticker.C:
		}
	}
}

// poll returns the receipt once it is confirmed deep enough
func (w *receiptWaiter) poll(ctx context.Context) (*types.TransactionReceipt, error) {
	number, err := w.c.GetBlockNumber(ctx, WithCacheTime(w.opts.PollingInterval))
	if err != nil {
		return nil, err
	}
	if w.lastScanned == 0 && number > 0 {
		w.lastScanned = number - 1
	}

	if w.receipt == nil {
		if err := w.lookup(ctx, number); err != nil {
			return nil, err
		}
		if w.receipt == nil {
			return nil, nil
		}
	}

	if confirmations(number, w.receipt.BlockNumber) < w.opts.Confirmations {
		return nil, nil
	}
	if w.replacement != nil && w.opts.OnReplaced != nil {
		w.opts.OnReplaced(*w.replacement)
	}
	return w.receipt, nil
}

// lookup fetches the receipt, or a replacement's receipt when the transaction
// disappeared from the node after having been seen.
func (w *receiptWaiter) lookup(ctx context.Context, number uint64) error {
	receipt, err := w.c.GetTransactionReceipt(ctx, w.hash)
	if err == nil {
		w.receipt = receipt
		return nil
	}
	var receiptNotFound *TransactionReceiptNotFoundError
	if !errors.As(err, &receiptNotFound) {
		return err
	}

	tx, err := w.c.GetTransaction(ctx, ByHash(w.hash))
	if err == nil {
		w.tx = tx
		return nil
	}
	var txNotFound *TransactionNotFoundError
	if !errors.As(err, &txNotFound) {
		return err
	}
	if w.tx == nil {
		// never seen; it may not have propagated yet
		return nil
	}
	return w.findReplacement(ctx, number)
}

func (w *receiptWaiter) findReplacement(ctx context.Context, number uint64) error {
	from := w.lastScanned + 1
	if number >= maxReplacementScan && from < number-maxReplacementScan+1 {
		from = number - maxReplacementScan + 1
	}

	for n := from; n <= number; n++ {
		block, err := w.c.GetBlock(ctx, BlockQuery{Number: &n, IncludeTransactions: true})
		if err != nil {
			return err
		}
		w.lastScanned = n

		for _, tx := range block.Transactions.Full {
			if tx.From != w.tx.From || tx.Nonce != w.tx.Nonce {
				continue
			}
			receipt, err := w.c.GetTransactionReceipt(ctx, tx.Hash)
			if err != nil {
				return err
			}
			w.receipt = receipt
			w.replacement = &Replacement{
				Reason:              classifyReplacement(w.tx, tx),
				ReplacedTransaction: w.tx,
				Transaction:         tx,
				Receipt:             receipt,
			}
			w.c.logger.Info("transaction replaced",
				zap.Stringer("hash", w.hash),
				zap.Stringer("replacement", tx.Hash),
				zap.String("reason", string(w.replacement.Reason)),
			)
			return nil
		}
	}
	return nil
}

func classifyReplacement(original, replacement *types.Transaction) ReplacementReason {
	if sameAddress(original.To, replacement.To) && bigEqual(original.Value, replacement.Value) && bytes.Equal(original.Input, replacement.Input) {
		return ReplacementRepriced
	}
	if replacement.To != nil && *replacement.To == replacement.From && (replacement.Value == nil || replacement.Value.Sign() == 0) {
		return ReplacementCancelled
	}
	return ReplacementReplaced
}

func sameAddress(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return (a == nil || a.Sign() == 0) && (b == nil || b.Sign() == 0)
	}
	return a.Cmp(b) == 0
}
