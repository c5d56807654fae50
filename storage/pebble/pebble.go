// Package pebble provides a persistent Storage implementation on top of a
// Pebble key-value store.
package pebble

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"github.com/gaze-network/uint128"

	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/indexer"
	"github.com/runelight-network/runelight/runes"
)

// Key prefixes. Heights and rune ids are big-endian so related keys sort
// together.
const (
	prefixBlockHash   = 'h' // h + be64(height) -> block hash
	prefixLatest      = 'H' // H -> be64(height)
	prefixRuneEntry   = 'r' // r + be64(block) + be32(tx) -> cbor(RuneEntry)
	prefixRuneIdByKey = 'n' // n + be64(hi) + be64(lo) of rune value -> rune id key
	prefixUtxo        = 'u' // u + txid + be32(vout) -> cbor([]balanceRow)
	prefixRuneCount   = 'c' // c -> be64(count)
)

// Store persists the ledger in Pebble. Writes of the block being processed
// accumulate in an indexed batch; reads go through the batch so they observe
// pending writes. CommitBlock commits the batch with fsync, AbortBlock drops
// it. The store expects a single writer.
type Store struct {
	db    *pebble.DB
	batch *pebble.Batch
}

var _ indexer.Storage = (*Store)(nil)

func New(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pebble db")
	}
	return &Store{
		db:    db,
		batch: db.NewIndexedBatch(),
	}, nil
}

func (s *Store) Close() error {
	if err := s.batch.Close(); err != nil {
		return errors.Wrap(err, "failed to close batch")
	}
	return errors.Wrap(s.db.Close(), "failed to close pebble db")
}

type balanceRow struct {
	Id     runes.RuneId    `cbor:"1,keyasint"`
	Amount uint128.Uint128 `cbor:"2,keyasint"`
}

func (s *Store) get(key []byte) ([]byte, error) {
	value, closer, err := s.batch.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, errors.WithStack(errs.NotFound)
		}
		return nil, errors.Wrap(err, "pebble get")
	}
	defer closer.Close()
	return append([]byte{}, value...), nil
}

func (s *Store) GetLatestHeight(_ context.Context) (uint64, error) {
	value, err := s.get([]byte{prefixLatest})
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) GetBlockHash(_ context.Context, height uint64) (chainhash.Hash, error) {
	value, err := s.get(blockHashKey(height))
	if err != nil {
		return chainhash.Hash{}, err
	}
	var hash chainhash.Hash
	if err := hash.SetBytes(value); err != nil {
		return chainhash.Hash{}, errors.Wrap(err, "corrupted block hash row")
	}
	return hash, nil
}

func (s *Store) SetBlockHash(_ context.Context, height uint64, hash chainhash.Hash) error {
	if err := s.batch.Set(blockHashKey(height), hash[:], nil); err != nil {
		return errors.Wrap(err, "failed to set block hash")
	}
	heightValue := binary.BigEndian.AppendUint64(nil, height)
	return errors.Wrap(s.batch.Set([]byte{prefixLatest}, heightValue, nil), "failed to set latest height")
}

func (s *Store) GetRuneEntry(_ context.Context, runeId runes.RuneId) (*runes.RuneEntry, error) {
	value, err := s.get(runeEntryKey(runeId))
	if err != nil {
		return nil, err
	}
	var entry runes.RuneEntry
	if err := cbor.Unmarshal(value, &entry); err != nil {
		return nil, errors.Wrap(err, "corrupted rune entry row")
	}
	return &entry, nil
}

func (s *Store) GetRuneEntryByRune(ctx context.Context, rune runes.Rune) (*runes.RuneEntry, error) {
	value, err := s.get(runeIdByNameKey(rune))
	if err != nil {
		return nil, err
	}
	var runeId runes.RuneId
	if err := cbor.Unmarshal(value, &runeId); err != nil {
		return nil, errors.Wrap(err, "corrupted rune id row")
	}
	return s.GetRuneEntry(ctx, runeId)
}

func (s *Store) SetRuneEntry(ctx context.Context, entry *runes.RuneEntry) error {
	_, err := s.GetRuneEntry(ctx, entry.RuneId)
	isNew := false
	if err != nil {
		if !errors.Is(err, errs.NotFound) {
			return err
		}
		isNew = true
	}

	value, err := cbor.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal rune entry")
	}
	if err := s.batch.Set(runeEntryKey(entry.RuneId), value, nil); err != nil {
		return errors.Wrap(err, "failed to set rune entry")
	}
	runeIdValue, err := cbor.Marshal(entry.RuneId)
	if err != nil {
		return errors.Wrap(err, "failed to marshal rune id")
	}
	if err := s.batch.Set(runeIdByNameKey(entry.SpacedRune.Rune), runeIdValue, nil); err != nil {
		return errors.Wrap(err, "failed to set rune name index")
	}

	if isNew {
		count, err := s.GetRuneCount(ctx)
		if err != nil {
			return err
		}
		countValue := binary.BigEndian.AppendUint64(nil, count+1)
		if err := s.batch.Set([]byte{prefixRuneCount}, countValue, nil); err != nil {
			return errors.Wrap(err, "failed to set rune count")
		}
	}
	return nil
}

func (s *Store) GetRuneCount(_ context.Context) (uint64, error) {
	value, err := s.get([]byte{prefixRuneCount})
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return 0, nil
		}
		return 0, err
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) IncrementMints(ctx context.Context, runeId runes.RuneId) error {
	entry, err := s.GetRuneEntry(ctx, runeId)
	if err != nil {
		return err
	}
	entry.Mints = entry.Mints.Add64(1)
	return s.SetRuneEntry(ctx, entry)
}

func (s *Store) AddBurned(ctx context.Context, runeId runes.RuneId, amount uint128.Uint128) error {
	entry, err := s.GetRuneEntry(ctx, runeId)
	if err != nil {
		return err
	}
	entry.BurnedAmount = entry.BurnedAmount.Add(amount)
	return s.SetRuneEntry(ctx, entry)
}

func (s *Store) GetUtxoBalances(_ context.Context, outPoint wire.OutPoint) (map[runes.RuneId]uint128.Uint128, error) {
	value, err := s.get(utxoKey(outPoint))
	if err != nil {
		return nil, err
	}
	var rows []balanceRow
	if err := cbor.Unmarshal(value, &rows); err != nil {
		return nil, errors.Wrap(err, "corrupted utxo balances row")
	}
	balances := make(map[runes.RuneId]uint128.Uint128, len(rows))
	for _, row := range rows {
		balances[row.Id] = row.Amount
	}
	return balances, nil
}

func (s *Store) SetUtxoBalances(_ context.Context, outPoint wire.OutPoint, balances map[runes.RuneId]uint128.Uint128) error {
	rows := make([]balanceRow, 0, len(balances))
	for runeId, amount := range balances {
		rows = append(rows, balanceRow{Id: runeId, Amount: amount})
	}
	// rows must be stored in rune id order so identical ledger states encode
	// to identical bytes
	slices.SortFunc(rows, func(a, b balanceRow) int {
		return a.Id.Cmp(b.Id)
	})
	value, err := cbor.Marshal(rows)
	if err != nil {
		return errors.Wrap(err, "failed to marshal utxo balances")
	}
	return errors.Wrap(s.batch.Set(utxoKey(outPoint), value, nil), "failed to set utxo balances")
}

func (s *Store) DeleteUtxoBalances(_ context.Context, outPoint wire.OutPoint) error {
	return errors.Wrap(s.batch.Delete(utxoKey(outPoint), nil), "failed to delete utxo balances")
}

func (s *Store) CommitBlock(_ context.Context) error {
	if err := s.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "failed to commit batch")
	}
	// committed batches still hold their buffers until closed
	if err := s.batch.Close(); err != nil {
		return errors.Wrap(err, "failed to close committed batch")
	}
	s.batch = s.db.NewIndexedBatch()
	return nil
}

func (s *Store) AbortBlock(_ context.Context) error {
	if err := s.batch.Close(); err != nil {
		return errors.Wrap(err, "failed to close batch")
	}
	s.batch = s.db.NewIndexedBatch()
	return nil
}

func blockHashKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{prefixBlockHash}, height)
}

func runeEntryKey(runeId runes.RuneId) []byte {
	key := binary.BigEndian.AppendUint64([]byte{prefixRuneEntry}, runeId.BlockHeight)
	return binary.BigEndian.AppendUint32(key, runeId.TxIndex)
}

func runeIdByNameKey(rune runes.Rune) []byte {
	value := rune.Uint128()
	key := binary.BigEndian.AppendUint64([]byte{prefixRuneIdByKey}, value.Hi)
	return binary.BigEndian.AppendUint64(key, value.Lo)
}

func utxoKey(outPoint wire.OutPoint) []byte {
	key := append([]byte{prefixUtxo}, outPoint.Hash[:]...)
	return binary.BigEndian.AppendUint32(key, outPoint.Index)
}
