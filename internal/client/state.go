package client

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Panorama-Block/archive/internal/types"
)

// GetBalance returns the native balance of address in wei
func (c *Client) GetBalance(ctx context.Context, address common.Address, block types.BlockSelector) (*big.Int, error) {
	var balance hexutil.Big
	if err := c.call(ctx, &balance, "eth_getBalance", address, block.Param()); err != nil {
		return nil, err
	}
	return balance.ToInt(), nil
}

// GetCode returns the bytecode at address; empty for externally owned accounts
func (c *Client) GetCode(ctx context.Context, address common.Address, block types.BlockSelector) ([]byte, error) {
	var code hexutil.Bytes
	if err := c.call(ctx, &code, "eth_getCode", address, block.Param()); err != nil {
		return nil, err
	}
	return code, nil
}

// GetStorageAt returns the storage word at slot
func (c *Client) GetStorageAt(ctx context.Context, address common.Address, slot common.Hash, block types.BlockSelector) (common.Hash, error) {
	var value hexutil.Bytes
	if err := c.call(ctx, &value, "eth_getStorageAt", address, slot, block.Param()); err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(value), nil
}
