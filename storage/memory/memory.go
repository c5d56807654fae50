// Package memory provides an in-memory Storage implementation, used in tests
// and for ephemeral indexing runs.
package memory

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"

	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/indexer"
	"github.com/runelight-network/runelight/runes"
)

// Store keeps the whole ledger in maps. Writes land in a pending overlay
// until CommitBlock folds them into the committed state; AbortBlock drops the
// overlay. Reads observe the overlay first.
type Store struct {
	mu sync.RWMutex

	latestHeight  *uint64
	blockHashes   map[uint64]chainhash.Hash
	runeEntries   map[runes.RuneId]*runes.RuneEntry
	runeIdsByName map[runes.Rune]runes.RuneId
	utxoBalances  map[wire.OutPoint]map[runes.RuneId]uint128.Uint128

	pendingLatestHeight *uint64
	pendingBlockHashes  map[uint64]chainhash.Hash
	pendingRuneEntries  map[runes.RuneId]*runes.RuneEntry
	pendingRuneIds      map[runes.Rune]runes.RuneId
	pendingUtxos        map[wire.OutPoint]map[runes.RuneId]uint128.Uint128
	deletedUtxos        map[wire.OutPoint]struct{}
}

var _ indexer.Storage = (*Store)(nil)

func New() *Store {
	s := &Store{
		blockHashes:   make(map[uint64]chainhash.Hash),
		runeEntries:   make(map[runes.RuneId]*runes.RuneEntry),
		runeIdsByName: make(map[runes.Rune]runes.RuneId),
		utxoBalances:  make(map[wire.OutPoint]map[runes.RuneId]uint128.Uint128),
	}
	s.resetPending()
	return s
}

func (s *Store) resetPending() {
	s.pendingLatestHeight = nil
	s.pendingBlockHashes = make(map[uint64]chainhash.Hash)
	s.pendingRuneEntries = make(map[runes.RuneId]*runes.RuneEntry)
	s.pendingRuneIds = make(map[runes.Rune]runes.RuneId)
	s.pendingUtxos = make(map[wire.OutPoint]map[runes.RuneId]uint128.Uint128)
	s.deletedUtxos = make(map[wire.OutPoint]struct{})
}

func (s *Store) GetLatestHeight(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pendingLatestHeight != nil {
		return *s.pendingLatestHeight, nil
	}
	if s.latestHeight == nil {
		return 0, errors.WithStack(errs.NotFound)
	}
	return *s.latestHeight, nil
}

func (s *Store) GetBlockHash(_ context.Context, height uint64) (chainhash.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if hash, ok := s.pendingBlockHashes[height]; ok {
		return hash, nil
	}
	hash, ok := s.blockHashes[height]
	if !ok {
		return chainhash.Hash{}, errors.WithStack(errs.NotFound)
	}
	return hash, nil
}

func (s *Store) SetBlockHash(_ context.Context, height uint64, hash chainhash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingBlockHashes[height] = hash
	s.pendingLatestHeight = &height
	return nil
}

func (s *Store) GetRuneEntry(_ context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRuneEntryLocked(runeId)
}

func (s *Store) getRuneEntryLocked(runeId runes.RuneId) (*runes.RuneEntry, error) {
	if entry, ok := s.pendingRuneEntries[runeId]; ok {
		return cloneRuneEntry(entry), nil
	}
	entry, ok := s.runeEntries[runeId]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return cloneRuneEntry(entry), nil
}

func (s *Store) GetRuneEntryByRune(_ context.Context, rune runes.Rune) (*runes.RuneEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if runeId, ok := s.pendingRuneIds[rune]; ok {
		return s.getRuneEntryLocked(runeId)
	}
	runeId, ok := s.runeIdsByName[rune]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return s.getRuneEntryLocked(runeId)
}

func (s *Store) SetRuneEntry(_ context.Context, entry *runes.RuneEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRuneEntries[entry.RuneId] = cloneRuneEntry(entry)
	s.pendingRuneIds[entry.SpacedRune.Rune] = entry.RuneId
	return nil
}

func (s *Store) GetRuneCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := uint64(len(s.runeIdsByName))
	for rune := range s.pendingRuneIds {
		if _, ok := s.runeIdsByName[rune]; !ok {
			count++
		}
	}
	return count, nil
}

func (s *Store) IncrementMints(_ context.Context, runeId runes.RuneId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getRuneEntryLocked(runeId)
	if err != nil {
		return err
	}
	entry.Mints = entry.Mints.Add64(1)
	s.pendingRuneEntries[runeId] = entry
	return nil
}

func (s *Store) AddBurned(_ context.Context, runeId runes.RuneId, amount uint128.Uint128) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, err := s.getRuneEntryLocked(runeId)
	if err != nil {
		return err
	}
	entry.BurnedAmount = entry.BurnedAmount.Add(amount)
	s.pendingRuneEntries[runeId] = entry
	return nil
}

func (s *Store) GetUtxoBalances(_ context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if balances, ok := s.pendingUtxos[outPoint]; ok {
		return cloneBalances(balances), nil
	}
	if _, ok := s.deletedUtxos[outPoint]; ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	balances, ok := s.utxoBalances[outPoint]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return cloneBalances(balances), nil
}

func (s *Store) SetUtxoBalances(_ context.Context, outPoint wire.OutPoint, balances map[runes.RuneId]uint128.Uint128) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deletedUtxos, outPoint)
	s.pendingUtxos[outPoint] = cloneBalances(balances)
	return nil
}

func (s *Store) DeleteUtxoBalances(_ context.Context, outPoint wire.OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingUtxos, outPoint)
	s.deletedUtxos[outPoint] = struct{}{}
	return nil
}

func (s *Store) CommitBlock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLatestHeight != nil {
		s.latestHeight = s.pendingLatestHeight
	}
	for height, hash := range s.pendingBlockHashes {
		s.blockHashes[height] = hash
	}
	for runeId, entry := range s.pendingRuneEntries {
		s.runeEntries[runeId] = entry
	}
	for rune, runeId := range s.pendingRuneIds {
		s.runeIdsByName[rune] = runeId
	}
	for outPoint := range s.deletedUtxos {
		delete(s.utxoBalances, outPoint)
	}
	for outPoint, balances := range s.pendingUtxos {
		s.utxoBalances[outPoint] = balances
	}
	s.resetPending()
	return nil
}

func (s *Store) AbortBlock(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetPending()
	return nil
}

func cloneRuneEntry(entry *runes.RuneEntry) *runes.RuneEntry {
	cloned := *entry
	if entry.Terms != nil {
		terms := *entry.Terms
		cloned.Terms = &terms
	}
	return &cloned
}

func cloneBalances(balances map[runes.RuneId]uint128.Uint128) map[runes.RuneId]uint128.Uint128 {
	cloned := make(map[runes.RuneId]uint128.Uint128, len(balances))
	for runeId, amount := range balances {
		cloned[runeId] = amount
	}
	return cloned
}
