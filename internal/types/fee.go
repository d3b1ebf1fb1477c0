package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FeeValues are the fee fields to put on a transaction. Legacy and eip2930
// transactions use GasPrice, later types use the 1559 pair.
type FeeValues struct {
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

// FeeHistory is the formatted result of eth_feeHistory
type FeeHistory struct {
	OldestBlock       uint64       `json:"oldestBlock"`
	BaseFeePerGas     []*big.Int   `json:"baseFeePerGas"`
	GasUsedRatio      []float64    `json:"gasUsedRatio"`
	Reward            [][]*big.Int `json:"reward,omitempty"`
	BaseFeePerBlobGas []*big.Int   `json:"baseFeePerBlobGas,omitempty"`
	BlobGasUsedRatio  []float64    `json:"blobGasUsedRatio,omitempty"`
}

// RPCFeeHistory is the wire form of eth_feeHistory
type RPCFeeHistory struct {
	OldestBlock       hexutil.Big     `json:"oldestBlock"`
	BaseFeePerGas     []hexutil.Big   `json:"baseFeePerGas"`
	GasUsedRatio      []float64       `json:"gasUsedRatio"`
	Reward            [][]hexutil.Big `json:"reward"`
	BaseFeePerBlobGas []hexutil.Big   `json:"baseFeePerBlobGas"`
	BlobGasUsedRatio  []float64       `json:"blobGasUsedRatio"`
}

// Format converts the wire fee history into a FeeHistory
func (r *RPCFeeHistory) Format() *FeeHistory {
	h := &FeeHistory{
		OldestBlock:       r.OldestBlock.ToInt().Uint64(),
		BaseFeePerGas:     bigSlice(r.BaseFeePerGas),
		GasUsedRatio:      r.GasUsedRatio,
		BaseFeePerBlobGas: bigSlice(r.BaseFeePerBlobGas),
		BlobGasUsedRatio:  r.BlobGasUsedRatio,
	}
	for _, rewards := range r.Reward {
		h.Reward = append(h.Reward, bigSlice(rewards))
	}
	return h
}

func bigSlice(in []hexutil.Big) []*big.Int {
	if in == nil {
		return nil
	}
	out := make([]*big.Int, len(in))
	for i := range in {
		out[i] = new(big.Int).Set(in[i].ToInt())
	}
	return out
}
