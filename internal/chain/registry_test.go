package chain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chainsYAML = `
chains:
  - id: 43114
    name: Avalanche Archive
    nativeCurrency:
      name: Avalanche
      symbol: AVAX
      decimals: 18
    rpcUrls:
      default:
        http:
          - http://archive.internal:9650/ext/bc/C/rpc
        webSocket:
          - ws://archive.internal:9650/ext/bc/C/ws
    contracts:
      multicall3:
        address: "0xcA11bde05977b3631167028862bE2a173976CA11"
        blockCreated: 11907934
    blockTime: 2s
  - id: 31337
    name: Anvil
    nativeCurrency:
      name: Ether
      symbol: ETH
      decimals: 18
    rpcUrls:
      default:
        http:
          - http://127.0.0.1:8545
    testnet: true
`

func TestBuiltInChainsAreValid(t *testing.T) {
	for _, c := range BuiltIn() {
		assert.NoError(t, c.Validate(), c.String())
	}
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(chainsYAML), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)

	avax, ok := r.Lookup(43114)
	require.True(t, ok)
	assert.Equal(t, "Avalanche Archive", avax.Name)
	assert.Equal(t, "http://archive.internal:9650/ext/bc/C/rpc", avax.DefaultHTTP())
	assert.Equal(t, "ws://archive.internal:9650/ext/bc/C/ws", avax.DefaultWebSocket())
	assert.Equal(t, 2*time.Second, avax.BlockTime)

	addr, ok := avax.Multicall3()
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0xca11bde05977b3631167028862be2a173976ca11"), addr)

	anvil, ok := r.Lookup(31337)
	require.True(t, ok)
	assert.True(t, anvil.Testnet)
	assert.Equal(t, "", anvil.DefaultWebSocket())
	_, ok = anvil.Multicall3()
	assert.False(t, ok)

	_, ok = r.Lookup(1)
	assert.True(t, ok, "built-ins are kept")
	assert.Len(t, r.Chains(), 5)
}

func TestMergeRejectsInvalidChain(t *testing.T) {
	r := NewRegistry()
	err := r.Merge([]byte("chains:\n  - id: 5\n    name: NoRPC\n"))
	assert.Error(t, err)
	_, ok := r.Lookup(5)
	assert.False(t, ok)
}

func TestLoadRegistryEmptyPath(t *testing.T) {
	r, err := LoadRegistry("")
	require.NoError(t, err)
	assert.Len(t, r.Chains(), len(BuiltIn()))
}

func TestValidate(t *testing.T) {
	assert.Error(t, Chain{}.Validate())
	assert.Error(t, Chain{ID: 1}.Validate())
	assert.Error(t, Chain{ID: 1, Name: "x"}.Validate())
}
