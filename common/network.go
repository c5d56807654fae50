package common

import (
	"github.com/btcsuite/btcd/chaincfg"
)

// Network is the Bitcoin network the indexer runs against.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// HalvingInterval is the number of blocks between Bitcoin subsidy halvings.
const HalvingInterval = 210_000

func (n Network) IsValid() bool {
	switch n {
	case NetworkMainnet, NetworkTestnet:
		return true
	}
	return false
}

func (n Network) String() string {
	return string(n)
}

// ChainParams returns the btcd chain parameters for the network.
func (n Network) ChainParams() *chaincfg.Params {
	switch n {
	case NetworkMainnet:
		return &chaincfg.MainNetParams
	case NetworkTestnet:
		return &chaincfg.TestNet3Params
	}
	return nil
}
