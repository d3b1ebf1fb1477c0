package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

func toBig(v *hexutil.Big) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v.ToInt())
}

func fromBig(v *big.Int) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v))
}

func toUint64Ptr(v *hexutil.Uint64) *uint64 {
	if v == nil {
		return nil
	}
	n := uint64(*v)
	return &n
}

func fromUint64Ptr(v *uint64) *hexutil.Uint64 {
	if v == nil {
		return nil
	}
	n := hexutil.Uint64(*v)
	return &n
}

func bigToUint64Ptr(v *hexutil.Big) *uint64 {
	if v == nil {
		return nil
	}
	n := v.ToInt().Uint64()
	return &n
}
