package indexer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/common"
	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/pkg/logger"
	"github.com/runelight-network/runelight/pkg/logger/slogx"
	"github.com/runelight-network/runelight/runes"
)

// ErrReorgDetected is returned by Update when a fetched block does not extend
// the chain the ledger was built on. Recovery requires rebuilding from a
// height before the fork point.
var ErrReorgDetected = errors.New("chain reorganization detected")

// Indexer builds the rune ledger by applying blocks in order.
type Indexer struct {
	storage Storage
	client  BitcoinClient
	network common.Network
}

type Option func(*Indexer)

func WithNetwork(network common.Network) Option {
	return func(i *Indexer) {
		i.network = network
	}
}

func New(storage Storage, client BitcoinClient, opts ...Option) *Indexer {
	i := &Indexer{
		storage: storage,
		client:  client,
		network: common.NetworkMainnet,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// CurrentHeight returns the height of the last indexed block, or
// errs.NotFound before any block has been committed.
func (i *Indexer) CurrentHeight(ctx context.Context) (uint64, error) {
	height, err := i.storage.GetLatestHeight(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get latest height")
	}
	return height, nil
}

// Update indexes all blocks from the last committed height up to the node's
// best tip. Blocks before the rune activation height are skipped. Each block
// is committed atomically; on failure the pending block is aborted and the
// ledger stays at the last committed block. Cancellation is honored at block
// boundaries.
func (i *Indexer) Update(ctx context.Context) error {
	startHeight, err := i.startHeight(ctx)
	if err != nil {
		return err
	}

	tipHeight, err := i.client.GetBlockCount(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get block count")
	}

	for height := startHeight; height <= tipHeight; height++ {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		block, err := i.client.GetBlock(ctx, height)
		if err != nil {
			return errors.Wrapf(err, "failed to get block %d", height)
		}
		if err := i.checkChainContinuity(ctx, block); err != nil {
			return err
		}

		if err := i.processBlock(ctx, block); err != nil {
			if abortErr := i.storage.AbortBlock(ctx); abortErr != nil {
				err = errors.Join(err, abortErr)
			}
			return errors.Wrapf(err, "failed to process block %d", height)
		}
		if err := i.storage.SetBlockHash(ctx, height, block.Header.Hash); err != nil {
			if abortErr := i.storage.AbortBlock(ctx); abortErr != nil {
				err = errors.Join(err, abortErr)
			}
			return errors.Wrapf(err, "failed to set block hash %d", height)
		}
		if err := i.storage.CommitBlock(ctx); err != nil {
			return errors.Wrapf(err, "failed to commit block %d", height)
		}

		logger.DebugContext(ctx, "indexed block",
			slogx.Uint64("height", height),
			slogx.Stringer("hash", block.Header.Hash),
		)
	}
	return nil
}

func (i *Indexer) startHeight(ctx context.Context) (uint64, error) {
	latest, err := i.storage.GetLatestHeight(ctx)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			if err := i.ensureGenesisRune(ctx); err != nil {
				return 0, err
			}
			return runes.FirstRuneHeight(i.network), nil
		}
		return 0, errors.Wrap(err, "failed to get latest height")
	}
	return latest + 1, nil
}

// checkChainContinuity verifies the new block links to the block the ledger
// last committed at the previous height.
func (i *Indexer) checkChainContinuity(ctx context.Context, block *types.Block) error {
	prevHeight := uint64(block.Header.Height) - 1
	storedHash, err := i.storage.GetBlockHash(ctx, prevHeight)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return nil
		}
		return errors.Wrap(err, "failed to get stored block hash")
	}
	if storedHash != block.Header.PrevBlock {
		return errors.Wrapf(ErrReorgDetected, "at height %d", block.Header.Height)
	}
	return nil
}

// ensureGenesisRune seeds the hard-coded first rune on mainnet. It is minted
// rather than premined: one unit per mint, no cap, open from activation until
// the first halving after it.
func (i *Indexer) ensureGenesisRune(ctx context.Context) error {
	if i.network != common.NetworkMainnet {
		return nil
	}
	runeId := runes.RuneId{BlockHeight: 1, TxIndex: 0}
	_, err := i.storage.GetRuneEntry(ctx, runeId)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errs.NotFound) {
		return errors.Wrap(err, "failed to get genesis rune entry")
	}

	firstRuneHeight := runes.FirstRuneHeight(i.network)
	entry := &runes.RuneEntry{
		RuneId: runeId,
		Number: 0,
		// UNCOMMON•GOODS
		SpacedRune: runes.NewSpacedRune(runes.NewRune(2055900680524219742), 128),
		Symbol:     '⧉',
		Terms: &runes.Terms{
			Amount:      lo.ToPtr(uint128.From64(1)),
			Cap:         lo.ToPtr(uint128.Max),
			HeightStart: lo.ToPtr(firstRuneHeight),
			HeightEnd:   lo.ToPtr(firstRuneHeight + common.HalvingInterval),
		},
	}
	if err := i.storage.SetRuneEntry(ctx, entry); err != nil {
		return errors.Wrap(err, "failed to set genesis rune entry")
	}
	if err := i.storage.CommitBlock(ctx); err != nil {
		return errors.Wrap(err, "failed to commit genesis rune entry")
	}
	return nil
}
