package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BlockTag names a block relative to the node's view of the chain
type BlockTag string

const (
	BlockLatest    BlockTag = "latest"
	BlockEarliest  BlockTag = "earliest"
	BlockPending   BlockTag = "pending"
	BlockSafe      BlockTag = "safe"
	BlockFinalized BlockTag = "finalized"
)

// BlockSelector picks a block by number, tag or hash. The zero value selects
// the latest block.
type BlockSelector struct {
	Number           *big.Int
	Tag              BlockTag
	Hash             *common.Hash
	RequireCanonical bool
}

func Latest() BlockSelector { return BlockSelector{Tag: BlockLatest} }

func Pending() BlockSelector { return BlockSelector{Tag: BlockPending} }

func AtTag(tag BlockTag) BlockSelector { return BlockSelector{Tag: tag} }

func AtNumber(n uint64) BlockSelector {
	return BlockSelector{Number: new(big.Int).SetUint64(n)}
}

func AtHash(hash common.Hash) BlockSelector { return BlockSelector{Hash: &hash} }

// IsZero reports whether nothing was selected explicitly
func (b BlockSelector) IsZero() bool {
	return b.Number == nil && b.Tag == "" && b.Hash == nil
}

// Param renders the selector as a JSON-RPC block parameter. Hashes use the
// EIP-1898 object form.
func (b BlockSelector) Param() interface{} {
	switch {
	case b.Hash != nil:
		return map[string]interface{}{
			"blockHash":        *b.Hash,
			"requireCanonical": b.RequireCanonical,
		}
	case b.Number != nil:
		return hexutil.EncodeBig(b.Number)
	case b.Tag != "":
		return string(b.Tag)
	default:
		return string(BlockLatest)
	}
}

// NumberOrTag renders the selector for methods that do not accept a block hash
func (b BlockSelector) NumberOrTag() (string, error) {
	if b.Hash != nil {
		return "", fmt.Errorf("block hash %s is not accepted here", b.Hash.Hex())
	}
	return b.Param().(string), nil
}

func (b BlockSelector) String() string {
	switch {
	case b.Hash != nil:
		return b.Hash.Hex()
	case b.Number != nil:
		return b.Number.String()
	case b.Tag != "":
		return string(b.Tag)
	default:
		return string(BlockLatest)
	}
}
