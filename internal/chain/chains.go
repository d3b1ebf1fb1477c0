package chain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var multicall3Address = common.HexToAddress("0xca11bde05977b3631167028862be2a173976ca11")

var Mainnet = Chain{
	ID:             1,
	Name:           "Ethereum",
	Network:        "homestead",
	NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	RPCURLs: map[string]RPCURLs{
		"default": {HTTP: []string{"https://eth.merkle.io"}},
	},
	BlockExplorers: map[string]Explorer{
		"default": {Name: "Etherscan", URL: "https://etherscan.io", APIURL: "https://api.etherscan.io/api"},
	},
	Contracts: Contracts{
		Multicall3: &Contract{Address: multicall3Address, BlockCreated: 14353601},
	},
	BlockTime: 12 * time.Second,
}

var Sepolia = Chain{
	ID:             11155111,
	Name:           "Sepolia",
	Network:        "sepolia",
	NativeCurrency: NativeCurrency{Name: "Sepolia Ether", Symbol: "ETH", Decimals: 18},
	RPCURLs: map[string]RPCURLs{
		"default": {HTTP: []string{"https://sepolia.drpc.org"}},
	},
	BlockExplorers: map[string]Explorer{
		"default": {Name: "Etherscan", URL: "https://sepolia.etherscan.io", APIURL: "https://api-sepolia.etherscan.io/api"},
	},
	Contracts: Contracts{
		Multicall3: &Contract{Address: multicall3Address, BlockCreated: 751532},
	},
	Testnet:   true,
	BlockTime: 12 * time.Second,
}

var Avalanche = Chain{
	ID:             43114,
	Name:           "Avalanche",
	Network:        "avalanche",
	NativeCurrency: NativeCurrency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18},
	RPCURLs: map[string]RPCURLs{
		"default": {
			HTTP:      []string{"https://api.avax.network/ext/bc/C/rpc"},
			WebSocket: []string{"wss://api.avax.network/ext/bc/C/ws"},
		},
	},
	BlockExplorers: map[string]Explorer{
		"default": {Name: "SnowTrace", URL: "https://snowtrace.io", APIURL: "https://api.snowtrace.io"},
	},
	Contracts: Contracts{
		Multicall3: &Contract{Address: multicall3Address, BlockCreated: 11907934},
	},
	BlockTime: 2 * time.Second,
}

var AvalancheFuji = Chain{
	ID:             43113,
	Name:           "Avalanche Fuji",
	Network:        "avalanche-fuji",
	NativeCurrency: NativeCurrency{Name: "Avalanche Fuji", Symbol: "AVAX", Decimals: 18},
	RPCURLs: map[string]RPCURLs{
		"default": {
			HTTP:      []string{"https://api.avax-test.network/ext/bc/C/rpc"},
			WebSocket: []string{"wss://api.avax-test.network/ext/bc/C/ws"},
		},
	},
	BlockExplorers: map[string]Explorer{
		"default": {Name: "SnowTrace", URL: "https://testnet.snowtrace.io", APIURL: "https://api-testnet.snowtrace.io"},
	},
	Contracts: Contracts{
		Multicall3: &Contract{Address: multicall3Address, BlockCreated: 7096959},
	},
	Testnet:   true,
	BlockTime: 2 * time.Second,
}

// BuiltIn returns the chains known without a registry file.
func BuiltIn() []Chain {
	return []Chain{Mainnet, Sepolia, Avalanche, AvalancheFuji}
}
