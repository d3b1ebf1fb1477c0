package client

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/chain"
	"github.com/Panorama-Block/archive/internal/rpctest"
	"github.com/Panorama-Block/archive/internal/transport"
	"github.com/Panorama-Block/archive/internal/types"
)

const tokenABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"Transfer","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"event","name":"Approval","anonymous":false,"inputs":[{"name":"owner","type":"address","indexed":true},{"name":"spender","type":"address","indexed":true},{"name":"value","type":"uint256","indexed":false}]},
	{"type":"error","name":"InsufficientBalance","inputs":[{"name":"available","type":"uint256"},{"name":"required","type":"uint256"}]}
]`

var token = common.HexToAddress("0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e")

func mustABI(t *testing.T) *abi.ABI {
	t.Helper()
	parsed, err := ParseABI(tokenABI)
	require.NoError(t, err)
	return parsed
}

type callArgs struct {
	From *common.Address `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

func decodeCallArgs(t *testing.T, params []json.RawMessage) callArgs {
	t.Helper()
	var args callArgs
	require.NoError(t, json.Unmarshal(params[0], &args))
	return args
}

func errorStringData(t *testing.T, reason string) []byte {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return append(append([]byte{}, errorSelector...), packed...)
}

func panicData(t *testing.T, code int64) []byte {
	t.Helper()
	packed, err := abi.Arguments{{Type: uint256Type}}.Pack(big.NewInt(code))
	require.NoError(t, err)
	return append(append([]byte{}, panicSelector...), packed...)
}

func reverted(data []byte) error {
	return &rpctest.Error{Code: transport.CodeExecutionReverted, Message: "execution reverted", Data: hexutil.Encode(data)}
}

// tokenNode answers eth_call like a token contract
func tokenNode(t *testing.T, parsed *abi.ABI) *rpctest.Server {
	server := rpctest.NewServer(t)
	server.Handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
		args := decodeCallArgs(t, params)
		method, err := parsed.MethodById(args.Data)
		require.NoError(t, err)

		var out []byte
		switch method.Name {
		case "balanceOf":
			out, err = method.Outputs.Pack(big.NewInt(100))
		case "symbol":
			out, err = method.Outputs.Pack("USDC")
		case "getReserves":
			out, err = method.Outputs.Pack(big.NewInt(7), big.NewInt(9))
		case "transfer":
			if args.From == nil {
				return nil, reverted(errorStringData(t, "sender required"))
			}
			customErr := parsed.Errors["InsufficientBalance"]
			data, err := customErr.Inputs.Pack(big.NewInt(1), big.NewInt(5))
			require.NoError(t, err)
			return nil, reverted(append(customErr.ID.Bytes()[:4], data...))
		}
		require.NoError(t, err)
		return hexutil.Encode(out), nil
	})
	return server
}

func TestReadContract(t *testing.T) {
	parsed := mustABI(t)
	c := newTestClient(t, tokenNode(t, parsed))
	ctx := context.Background()

	balance, err := c.ReadContract(ctx, ContractCall{Address: token, ABI: parsed, FunctionName: "balanceOf", Args: []interface{}{alice}})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), balance)

	reserves, err := c.ReadContract(ctx, ContractCall{Address: token, ABI: parsed, FunctionName: "getReserves"})
	require.NoError(t, err)
	assert.Len(t, reserves, 2)

	_, err = c.ReadContract(ctx, ContractCall{Address: token, ABI: parsed, FunctionName: "missing"})
	assert.ErrorContains(t, err, "not found in abi")
}

func TestReadContractAs(t *testing.T) {
	parsed := mustABI(t)
	c := newTestClient(t, tokenNode(t, parsed))
	ctx := context.Background()

	symbol, err := ReadContractAs[string](ctx, c, ContractCall{Address: token, ABI: parsed, FunctionName: "symbol"})
	require.NoError(t, err)
	assert.Equal(t, "USDC", symbol)

	balance, err := ReadContractAs[*big.Int](ctx, c, ContractCall{Address: token, ABI: parsed, FunctionName: "balanceOf", Args: []interface{}{bob}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.Int64())

	type reserves struct {
		Reserve0 *big.Int
		Reserve1 *big.Int
	}
	r, err := ReadContractAs[reserves](ctx, c, ContractCall{Address: token, ABI: parsed, FunctionName: "getReserves"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), r.Reserve0.Int64())
	assert.Equal(t, int64(9), r.Reserve1.Int64())
}

func TestSimulateContractDecodesCustomError(t *testing.T) {
	parsed := mustABI(t)
	c := newTestClient(t, tokenNode(t, parsed))

	_, err := c.SimulateContract(context.Background(), ContractCall{
		Address:      token,
		ABI:          parsed,
		FunctionName: "transfer",
		Args:         []interface{}{bob, big.NewInt(5)},
		From:         &alice,
	})
	var execErr *ContractFunctionExecutionError
	require.True(t, errors.As(err, &execErr))
	require.NotNil(t, execErr.Revert)
	assert.Equal(t, "InsufficientBalance", execErr.Revert.ErrorName)
	assert.Equal(t, "transfer", execErr.FunctionName)

	var callErr *CallExecutionError
	assert.True(t, errors.As(err, &callErr))
}

func TestSimulateContractRevertReason(t *testing.T) {
	parsed := mustABI(t)
	c := newTestClient(t, tokenNode(t, parsed))

	_, err := c.SimulateContract(context.Background(), ContractCall{
		Address:      token,
		ABI:          parsed,
		FunctionName: "transfer",
		Args:         []interface{}{bob, big.NewInt(5)},
	})
	var execErr *ContractFunctionExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "sender required", execErr.Revert.Reason)
	assert.Contains(t, err.Error(), `reverted with reason "sender required"`)
}

func TestCallKeepsMalformedRevertData(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_call", func([]json.RawMessage) (interface{}, error) {
		return nil, &rpctest.Error{Code: 3, Message: "execution reverted", Data: "0x08c379zz"}
	})
	c := newTestClient(t, server)

	_, err := c.Call(context.Background(), CallRequest{
		TransactionRequest: types.TransactionRequest{To: &token},
	})
	var callErr *CallExecutionError
	require.True(t, errors.As(err, &callErr))
	require.NotNil(t, callErr.Revert)
	assert.Equal(t, "0x08c379zz", callErr.Revert.RawData)
	assert.Empty(t, callErr.Revert.Data)
	assert.Contains(t, err.Error(), "reverted with malformed data 0x08c379zz")
}

func TestSimulateContractReturnsRequest(t *testing.T) {
	parsed := mustABI(t)
	server := rpctest.NewServer(t)
	server.Handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
		out, err := parsed.Methods["transfer"].Outputs.Pack(true)
		require.NoError(t, err)
		return hexutil.Encode(out), nil
	})
	c := newTestClient(t, server)

	result, err := c.SimulateContract(context.Background(), ContractCall{
		Address:      token,
		ABI:          parsed,
		FunctionName: "transfer",
		Args:         []interface{}{bob, big.NewInt(5)},
		From:         &alice,
		Value:        big.NewInt(0),
	})
	require.NoError(t, err)
	assert.Equal(t, true, result.Result)
	assert.Equal(t, token, *result.Request.To)
	assert.Equal(t, alice, *result.Request.From)

	expected, err := parsed.Pack("transfer", bob, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, expected, result.Request.Data)
}

func TestDecodeRevert(t *testing.T) {
	r := decodeRevert(panicData(t, 0x11), nil)
	assert.Equal(t, int64(0x11), r.PanicCode.Int64())
	assert.Equal(t, "arithmetic operation resulted in underflow or overflow", r.Reason)

	r = decodeRevert(errorStringData(t, "paused"), nil)
	assert.Equal(t, "paused", r.Reason)

	r = decodeRevert([]byte{0xde, 0xad, 0xbe, 0xef}, nil)
	assert.Empty(t, r.Reason)
	assert.Equal(t, "reverted with data 0xdeadbeef", r.String())
}

func TestCallRejectsInvalidRequest(t *testing.T) {
	server := rpctest.NewServer(t)
	c := newTestClient(t, server)

	req := CallRequest{}
	req.To = &token
	req.GasPrice = big.NewInt(1)
	req.MaxFeePerGas = big.NewInt(1)

	_, err := c.Call(context.Background(), req)
	assert.Error(t, err)
	assert.Zero(t, server.Calls("eth_call"))
}

func TestEstimateGas(t *testing.T) {
	server := rpctest.NewServer(t)
	server.Handle("eth_estimateGas", func(params []json.RawMessage) (interface{}, error) {
		assert.Len(t, params, 1)
		return "0x5208", nil
	})
	c := newTestClient(t, server)

	req := types.TransactionRequest{From: &alice, To: &bob, Value: big.NewInt(1)}
	gas, err := c.EstimateGas(context.Background(), req, types.BlockSelector{})
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), gas)
}

func TestMulticall(t *testing.T) {
	parsed := mustABI(t)
	server := rpctest.NewServer(t)
	server.Handle("eth_call", func(params []json.RawMessage) (interface{}, error) {
		args := decodeCallArgs(t, params)
		multicallAddress, _ := chain.Avalanche.Multicall3()
		require.Equal(t, multicallAddress, *args.To)

		values, err := multicall3.Methods["aggregate3"].Inputs.Unpack(args.Data[4:])
		require.NoError(t, err)
		var calls []call3
		require.NoError(t, convertInto(values[0], &calls))

		results := make([]result3, len(calls))
		for i, call := range calls {
			method, err := parsed.MethodById(call.CallData)
			require.NoError(t, err)
			switch method.Name {
			case "balanceOf":
				out, _ := method.Outputs.Pack(big.NewInt(int64(100 + i)))
				results[i] = result3{Success: true, ReturnData: out}
			default:
				results[i] = result3{Success: false, ReturnData: errorStringData(t, "nope")}
			}
		}
		out, err := multicall3.Methods["aggregate3"].Outputs.Pack(results)
		require.NoError(t, err)
		return hexutil.Encode(out), nil
	})
	c := newTestClient(t, server)
	ctx := context.Background()

	calls := []ContractCall{
		{Address: token, ABI: parsed, FunctionName: "balanceOf", Args: []interface{}{alice}},
		{Address: token, ABI: parsed, FunctionName: "symbol"},
		{Address: token, ABI: parsed, FunctionName: "balanceOf", Args: []interface{}{bob}},
	}

	results, err := c.Multicall(ctx, calls, MulticallOptions{AllowFailure: true})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, big.NewInt(100), results[0].Result)
	assert.Equal(t, big.NewInt(102), results[2].Result)

	var execErr *ContractFunctionExecutionError
	require.True(t, errors.As(results[1].Err, &execErr))
	assert.Equal(t, "nope", execErr.Revert.Reason)

	_, err = c.Multicall(ctx, calls, MulticallOptions{})
	assert.Error(t, err)

	chunked, err := c.Multicall(ctx, calls, MulticallOptions{AllowFailure: true, ChunkSize: 1})
	require.NoError(t, err)
	// every chunk restarts at index 0 on the node
	assert.Equal(t, big.NewInt(100), chunked[2].Result)
	assert.Equal(t, 5, server.Calls("eth_call"))
}
