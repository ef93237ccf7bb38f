package models

import (
	"fmt"
	"strings"
)

// Network is the settlement chain a negotiation pays out on.
type Network string

const (
	NetworkFuji    Network = "fuji"
	NetworkSepolia Network = "sepolia"
)

type NetworkConfig struct {
	Name            Network `json:"name"`
	DisplayName     string  `json:"display_name"`
	ChainID         int64   `json:"chain_id"`
	RPCURL          string  `json:"rpc_url"`
	ExplorerURL     string  `json:"explorer_url"`
	TokenContract   string  `json:"token_contract"`
	AgentRegistry   string  `json:"agent_registry"`
	TrafficContract string  `json:"traffic_contract"`
	SupportsEIP7702 bool    `json:"supports_eip7702"`
}

var networkConfigs = map[Network]NetworkConfig{
	NetworkFuji: {
		Name:            NetworkFuji,
		DisplayName:     "Avalanche Fuji",
		ChainID:         43113,
		RPCURL:          "https://api.avax-test.network/ext/bc/C/rpc",
		ExplorerURL:     "https://testnet.snowtrace.io",
		TokenContract:   "0xE50b2A73eCf5D93D1c885C2F676f8921F3CaCdcd",
		AgentRegistry:   "0xD41DBe68a4aBe9CcA352400Ba1240E27865cD1c1",
		TrafficContract: "0xC196330F11B18973274419E7Fa2cf954Aff98BE8",
	},
	NetworkSepolia: {
		Name:            NetworkSepolia,
		DisplayName:     "Ethereum Sepolia",
		ChainID:         11155111,
		RPCURL:          "https://ethereum-sepolia-rpc.publicnode.com",
		ExplorerURL:     "https://sepolia.etherscan.io",
		TokenContract:   "0x48EDb73F9C584A38Da43A6Ec9F39eF6D14E4A557",
		AgentRegistry:   "0x169d90cE2A7ccbF67e1B20752339eBc1a068dbb3",
		TrafficContract: "0x1a61a82Ab9874FFFBE9aC6F00479d5c8ae2EC142",
		SupportsEIP7702: true,
	},
}

func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if n == "" {
		return NetworkFuji, nil
	}
	if _, ok := networkConfigs[n]; !ok {
		return "", fmt.Errorf("unknown network %q", s)
	}
	return n, nil
}

func (n Network) Config() NetworkConfig {
	if cfg, ok := networkConfigs[n]; ok {
		return cfg
	}
	return networkConfigs[NetworkFuji]
}

// TxURL links a transaction reference on the network's explorer.
func (n Network) TxURL(ref string) string {
	return n.Config().ExplorerURL + "/tx/" + ref
}
