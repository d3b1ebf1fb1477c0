package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Panorama-Block/archive/internal/chain"
	"github.com/Panorama-Block/archive/internal/logging"
	"github.com/Panorama-Block/archive/internal/transport"
)

const (
	defaultPollingInterval = 4 * time.Second
	minPollingInterval     = time.Second
)

// Transport holds the RPC transport settings
type Transport struct {
	Timeout    time.Duration
	RetryCount int
	RetryDelay time.Duration
	RateLimit  float64 // Request rate limit (requests per second)
	RateBurst  int     // Maximum burst size for the rate limiter
	BatchSize  int
}

// Kafka holds the broker address and the topic of each archived event type
type Kafka struct {
	Broker              string
	TopicBlocks         string
	TopicTransactions   string
	TopicLogs           string
	TopicContractEvents string
}

// WatchContract is a contract whose events are archived. Without an ABI the
// raw logs are archived.
type WatchContract struct {
	Address common.Address
	ABIPath string
}

type Config struct {
	Chain  chain.Chain
	RPCURL string
	WSURL  string

	Transport       Transport
	PollingInterval time.Duration
	CacheTime       time.Duration
	VerifyChainID   bool

	Kafka Kafka

	WebSocketPort string
	MetricsPort   string
	Workers       int

	// Enable realtime archiving of new blocks
	EnableRealtime bool
	WatchContracts []WatchContract

	LogDev bool
}

// Default returns the default client configuration: Avalanche C-Chain over its
// public RPC endpoint.
func Default() *Config {
	c := chain.Avalanche
	polling := PollingIntervalFor(c)
	return &Config{
		Chain: c,
		Transport: Transport{
			Timeout:    10 * time.Second,
			RetryCount: 3,
			RetryDelay: 150 * time.Millisecond,
			RateLimit:  5.0, // Default: 5 requests per second
			RateBurst:  10,  // Default: burst of 10 requests
			BatchSize:  100,
		},
		PollingInterval: polling,
		CacheTime:       polling,
		VerifyChainID:   true,
		Kafka: Kafka{
			TopicBlocks:         "archive.blocks",
			TopicTransactions:   "archive.transactions",
			TopicLogs:           "archive.logs",
			TopicContractEvents: "archive.events",
		},
		WebSocketPort:  "8081",
		MetricsPort:    "9090",
		Workers:        10,
		EnableRealtime: true,
	}
}

// PollingIntervalFor returns the default polling interval for a chain: 4s, or
// the block time for faster chains, but never less than a second.
func PollingIntervalFor(c chain.Chain) time.Duration {
	interval := defaultPollingInterval
	if c.BlockTime > 0 && c.BlockTime < interval {
		interval = c.BlockTime
	}
	if interval < minPollingInterval {
		interval = minPollingInterval
	}
	return interval
}

// Load reads .env and the environment on top of Default
func Load(logger *zap.Logger) (*Config, error) {
	logger = logging.OrNop(logger)
	if err := godotenv.Load(".env"); err != nil {
		logger.Debug(".env not found, using environment only")
	}

	cfg := Default()

	registry, err := chain.LoadRegistry(os.Getenv("ARCHIVE_CHAINS_FILE"))
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("ARCHIVE_CHAIN_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ARCHIVE_CHAIN_ID %q: %w", v, err)
		}
		c, ok := registry.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown chain id %d", id)
		}
		cfg.Chain = c
		cfg.PollingInterval = PollingIntervalFor(c)
	} else if c, ok := registry.Lookup(cfg.Chain.ID); ok {
		// the chains file may override the default chain
		cfg.Chain = c
	}

	cfg.RPCURL = os.Getenv("ARCHIVE_RPC_URL")
	cfg.WSURL = getEnv("ARCHIVE_WS_URL", cfg.Chain.DefaultWebSocket())

	cfg.Transport.Timeout = getDuration("RPC_TIMEOUT", cfg.Transport.Timeout)
	cfg.Transport.RetryCount = getCount("RPC_RETRY_COUNT", cfg.Transport.RetryCount)
	cfg.Transport.RetryDelay = getDuration("RPC_RETRY_DELAY", cfg.Transport.RetryDelay)
	cfg.Transport.RateLimit = getFloat("RPC_RATE_LIMIT", cfg.Transport.RateLimit)
	cfg.Transport.RateBurst = getInt("RPC_RATE_BURST", cfg.Transport.RateBurst)
	cfg.Transport.BatchSize = getInt("RPC_BATCH_SIZE", cfg.Transport.BatchSize)

	cfg.PollingInterval = getDuration("POLLING_INTERVAL", cfg.PollingInterval)
	cfg.CacheTime = getDuration("CACHE_TIME", cfg.PollingInterval)
	cfg.VerifyChainID = getBool("VERIFY_CHAIN_ID", cfg.VerifyChainID)

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.TopicBlocks = getEnv("KAFKA_TOPIC_BLOCKS", cfg.Kafka.TopicBlocks)
	cfg.Kafka.TopicTransactions = getEnv("KAFKA_TOPIC_TRANSACTIONS", cfg.Kafka.TopicTransactions)
	cfg.Kafka.TopicLogs = getEnv("KAFKA_TOPIC_LOGS", cfg.Kafka.TopicLogs)
	cfg.Kafka.TopicContractEvents = getEnv("KAFKA_TOPIC_EVENTS", cfg.Kafka.TopicContractEvents)

	cfg.WebSocketPort = getEnv("WEBSOCKET_PORT", cfg.WebSocketPort)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	cfg.Workers = getInt("WORKERS", cfg.Workers)
	cfg.EnableRealtime = getBool("ENABLE_REALTIME", cfg.EnableRealtime)
	cfg.LogDev = getBool("LOG_DEV", cfg.LogDev)

	cfg.WatchContracts, err = ParseWatchContracts(os.Getenv("WATCH_CONTRACTS"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// TransportOptions converts the transport settings for transport.Dial
func (c *Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.Timeout = c.Transport.Timeout
	opts.RetryCount = c.Transport.RetryCount
	opts.RetryDelay = c.Transport.RetryDelay
	opts.RateLimit = c.Transport.RateLimit
	opts.RateBurst = c.Transport.RateBurst
	opts.BatchSize = c.Transport.BatchSize
	return opts
}

// ParseWatchContracts parses a comma separated list of address or
// address:abiPath entries.
func ParseWatchContracts(s string) ([]WatchContract, error) {
	var out []WatchContract
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		address, abiPath, _ := strings.Cut(entry, ":")
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("invalid contract address %q in WATCH_CONTRACTS", address)
		}
		out = append(out, WatchContract{Address: common.HexToAddress(address), ABIPath: abiPath})
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// getCount is getInt for keys where zero is meaningful
func getCount(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
