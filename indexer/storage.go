package indexer

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/gaze-network/uint128"

	"github.com/runelight-network/runelight/runes"
)

// Storage persists the rune ledger. Writes between CommitBlock calls belong to
// the block being processed: CommitBlock makes them durable atomically and
// AbortBlock discards them. Lookups observe pending writes of the current
// block.
//
// Get methods return an error matching errs.NotFound when the requested key
// does not exist.
type Storage interface {
	// GetLatestHeight returns the height of the last committed block.
	GetLatestHeight(ctx context.Context) (uint64, error)
	GetBlockHash(ctx context.Context, height uint64) (chainhash.Hash, error)
	SetBlockHash(ctx context.Context, height uint64, hash chainhash.Hash) error

	GetRuneEntry(ctx context.Context, runeId runes.RuneId) (*runes.RuneEntry, error)
	GetRuneEntryByRune(ctx context.Context, rune runes.Rune) (*runes.RuneEntry, error)
	SetRuneEntry(ctx context.Context, entry *runes.RuneEntry) error
	// GetRuneCount returns the number of etched runes, used to assign entry
	// numbers.
	GetRuneCount(ctx context.Context) (uint64, error)
	// IncrementMints adds one to the mint counter of the rune entry.
	IncrementMints(ctx context.Context, runeId runes.RuneId) error
	// AddBurned adds amount to the burned counter of the rune entry.
	AddBurned(ctx context.Context, runeId runes.RuneId, amount uint128.Uint128) error

	GetUtxoBalances(ctx context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error)
	SetUtxoBalances(ctx context.Context, outPoint wire.OutPoint, balances map[runes.RuneId]uint128.Uint128) error
	DeleteUtxoBalances(ctx context.Context, outPoint wire.OutPoint) error

	CommitBlock(ctx context.Context) error
	AbortBlock(ctx context.Context) error
}
