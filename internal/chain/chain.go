package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeCurrency describes the gas token of a chain
type NativeCurrency struct {
	Name     string `yaml:"name" json:"name"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals uint8  `yaml:"decimals" json:"decimals"`
}

// RPCURLs holds the endpoints for one RPC provider
type RPCURLs struct {
	HTTP      []string `yaml:"http" json:"http"`
	WebSocket []string `yaml:"webSocket,omitempty" json:"webSocket,omitempty"`
}

// Explorer is a block explorer entry
type Explorer struct {
	Name   string `yaml:"name" json:"name"`
	URL    string `yaml:"url" json:"url"`
	APIURL string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
}

// Contract is a well-known contract deployed on the chain
type Contract struct {
	Address      common.Address `yaml:"address" json:"address"`
	BlockCreated uint64         `yaml:"blockCreated,omitempty" json:"blockCreated,omitempty"`
}

// Contracts lists the well-known contracts used by the client
type Contracts struct {
	Multicall3 *Contract `yaml:"multicall3,omitempty" json:"multicall3,omitempty"`
}

// Chain identifies a blockchain network and how to reach it
type Chain struct {
	ID             uint64              `yaml:"id" json:"id"`
	Name           string              `yaml:"name" json:"name"`
	Network        string              `yaml:"network,omitempty" json:"network,omitempty"`
	NativeCurrency NativeCurrency      `yaml:"nativeCurrency" json:"nativeCurrency"`
	RPCURLs        map[string]RPCURLs  `yaml:"rpcUrls" json:"rpcUrls"`
	BlockExplorers map[string]Explorer `yaml:"blockExplorers,omitempty" json:"blockExplorers,omitempty"`
	Contracts      Contracts           `yaml:"contracts,omitempty" json:"contracts,omitempty"`
	Testnet        bool                `yaml:"testnet,omitempty" json:"testnet,omitempty"`
	BlockTime      time.Duration       `yaml:"blockTime,omitempty" json:"blockTime,omitempty"`
}

// DefaultHTTP returns the first HTTP endpoint of the default provider, or "".
func (c Chain) DefaultHTTP() string {
	urls, ok := c.RPCURLs["default"]
	if !ok || len(urls.HTTP) == 0 {
		return ""
	}
	return urls.HTTP[0]
}

// DefaultWebSocket returns the first websocket endpoint of the default provider, or "".
func (c Chain) DefaultWebSocket() string {
	urls, ok := c.RPCURLs["default"]
	if !ok || len(urls.WebSocket) == 0 {
		return ""
	}
	return urls.WebSocket[0]
}

// Multicall3 returns the multicall3 deployment, if the chain has one.
func (c Chain) Multicall3() (common.Address, bool) {
	if c.Contracts.Multicall3 == nil {
		return common.Address{}, false
	}
	return c.Contracts.Multicall3.Address, true
}

// Validate checks that the chain can be used to build a client
func (c Chain) Validate() error {
	if c.ID == 0 {
		return errors.New("chain id must be set")
	}
	if c.Name == "" {
		return fmt.Errorf("chain %d: name must be set", c.ID)
	}
	if c.DefaultHTTP() == "" {
		return fmt.Errorf("chain %d (%s): default http rpc url must be set", c.ID, c.Name)
	}
	return nil
}

func (c Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name, c.ID)
}
