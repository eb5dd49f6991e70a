package domain

import (
	"fmt"
	"strings"
)

// Network tags which Stellar network an event was captured from.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// NetworkPassphrases maps a network to its passphrase.
var NetworkPassphrases = map[Network]string{
	NetworkMainnet: "Public Global Stellar Network ; September 2015",
	NetworkTestnet: "Test SDF Network ; September 2015",
}

// ParseNetwork accepts the common aliases used in configs and CLI flags.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "mainnet", "public", "pubnet":
		return NetworkMainnet, nil
	case "testnet", "test":
		return NetworkTestnet, nil
	default:
		return "", fmt.Errorf("unknown network: %s", s)
	}
}
