package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Panorama-Block/archive/internal/chain"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, uint64(43114), cfg.Chain.ID)
	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 3, cfg.Transport.RetryCount)
	assert.Equal(t, 150*time.Millisecond, cfg.Transport.RetryDelay)
	assert.Equal(t, 5.0, cfg.Transport.RateLimit)
	assert.Equal(t, 10, cfg.Transport.RateBurst)
	assert.Equal(t, 2*time.Second, cfg.PollingInterval)
	assert.Equal(t, cfg.PollingInterval, cfg.CacheTime)
	assert.Equal(t, 10, cfg.Workers)
}

func TestPollingIntervalFor(t *testing.T) {
	assert.Equal(t, 4*time.Second, PollingIntervalFor(chain.Mainnet))
	assert.Equal(t, 2*time.Second, PollingIntervalFor(chain.Avalanche))
	assert.Equal(t, time.Second, PollingIntervalFor(chain.Chain{BlockTime: 250 * time.Millisecond}))
	assert.Equal(t, 4*time.Second, PollingIntervalFor(chain.Chain{}))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARCHIVE_CHAIN_ID", "1")
	t.Setenv("ARCHIVE_RPC_URL", "http://localhost:8545")
	t.Setenv("RPC_TIMEOUT", "3s")
	t.Setenv("RPC_RETRY_COUNT", "5")
	t.Setenv("RPC_RATE_LIMIT", "20")
	t.Setenv("POLLING_INTERVAL", "500ms")
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("KAFKA_TOPIC_BLOCKS", "blocks")
	t.Setenv("WORKERS", "-1")
	t.Setenv("ENABLE_REALTIME", "no")
	t.Setenv("WATCH_CONTRACTS", "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E:usdc.json, 0x49D5c2BdFfac6CE2BFdB6640F4F80f226bc10bAB")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "Ethereum", cfg.Chain.Name)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, 3*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 5, cfg.Transport.RetryCount)
	assert.Equal(t, 20.0, cfg.Transport.RateLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.PollingInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.CacheTime)
	assert.Equal(t, "localhost:9092", cfg.Kafka.Broker)
	assert.Equal(t, "blocks", cfg.Kafka.TopicBlocks)
	assert.Equal(t, "archive.logs", cfg.Kafka.TopicLogs)
	assert.Equal(t, 10, cfg.Workers)
	assert.False(t, cfg.EnableRealtime)

	require.Len(t, cfg.WatchContracts, 2)
	assert.Equal(t, common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"), cfg.WatchContracts[0].Address)
	assert.Equal(t, "usdc.json", cfg.WatchContracts[0].ABIPath)
	assert.Empty(t, cfg.WatchContracts[1].ABIPath)

	opts := cfg.TransportOptions()
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, 20.0, opts.RateLimit)
}

func TestLoadRetryCountZeroDisablesRetries(t *testing.T) {
	t.Setenv("RPC_RETRY_COUNT", "0")
	t.Setenv("RPC_BATCH_SIZE", "0")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Zero(t, cfg.Transport.RetryCount)
	assert.Equal(t, Default().Transport.BatchSize, cfg.Transport.BatchSize)

	t.Setenv("RPC_RETRY_COUNT", "-2")
	cfg, err = Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Transport.RetryCount, cfg.Transport.RetryCount)
}

func TestLoadChainsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  - id: 31337
    name: Anvil
    network: anvil
    nativeCurrency: {name: Ether, symbol: ETH, decimals: 18}
    rpcUrls:
      default:
        http: ["http://127.0.0.1:8545"]
    blockTime: 1s
`), 0o600))
	t.Setenv("ARCHIVE_CHAINS_FILE", path)
	t.Setenv("ARCHIVE_CHAIN_ID", "31337")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "Anvil", cfg.Chain.Name)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.Chain.DefaultHTTP())
	assert.Equal(t, time.Second, cfg.PollingInterval)
	assert.Empty(t, cfg.WSURL)
}

func TestLoadRejectsUnknownChain(t *testing.T) {
	t.Setenv("ARCHIVE_CHAIN_ID", "999999")
	_, err := Load(nil)
	assert.ErrorContains(t, err, "unknown chain id 999999")
}

func TestParseWatchContracts(t *testing.T) {
	contracts, err := ParseWatchContracts("")
	require.NoError(t, err)
	assert.Empty(t, contracts)

	_, err = ParseWatchContracts("not-an-address")
	assert.Error(t, err)
}
