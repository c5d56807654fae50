package indexer

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/runelight-network/runelight/core/types"
)

// BitcoinClient reads blocks and transactions from a Bitcoin node.
type BitcoinClient interface {
	// GetBlockCount returns the height of the best chain tip.
	GetBlockCount(ctx context.Context) (uint64, error)
	GetBlockHash(ctx context.Context, height uint64) (chainhash.Hash, error)
	GetBlock(ctx context.Context, height uint64) (*types.Block, error)
	// GetTransaction returns a confirmed transaction by hash.
	GetTransaction(ctx context.Context, txHash chainhash.Hash) (*types.Transaction, error)
}
