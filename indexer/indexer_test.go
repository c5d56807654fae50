package indexer_test

import (
	"context"
	"testing"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelight-network/runelight/common"
	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/indexer"
	"github.com/runelight-network/runelight/runes"
	"github.com/runelight-network/runelight/storage/memory"
)

var startHeight = runes.FirstRuneHeight(common.NetworkMainnet)

type fakeBitcoinClient struct {
	tip    uint64
	blocks map[uint64]*types.Block
	txs    map[chainhash.Hash]*types.Transaction
}

func newFakeClient() *fakeBitcoinClient {
	return &fakeBitcoinClient{
		blocks: make(map[uint64]*types.Block),
		txs:    make(map[chainhash.Hash]*types.Transaction),
	}
}

func (c *fakeBitcoinClient) GetBlockCount(context.Context) (uint64, error) {
	return c.tip, nil
}

func (c *fakeBitcoinClient) GetBlockHash(_ context.Context, height uint64) (chainhash.Hash, error) {
	block, ok := c.blocks[height]
	if !ok {
		return chainhash.Hash{}, errors.WithStack(errs.NotFound)
	}
	return block.Header.Hash, nil
}

func (c *fakeBitcoinClient) GetBlock(_ context.Context, height uint64) (*types.Block, error) {
	block, ok := c.blocks[height]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return block, nil
}

func (c *fakeBitcoinClient) GetTransaction(_ context.Context, txHash chainhash.Hash) (*types.Transaction, error) {
	tx, ok := c.txs[txHash]
	if !ok {
		return nil, errors.WithStack(errs.NotFound)
	}
	return tx, nil
}

// addBlock appends a block at the next height, linking it to the previous one,
// and registers its transactions.
func (c *fakeBitcoinClient) addBlock(height uint64, txs ...*types.Transaction) *types.Block {
	var prev chainhash.Hash
	if parent, ok := c.blocks[height-1]; ok {
		prev = parent.Header.Hash
	}
	block := &types.Block{
		Header: types.BlockHeader{
			Hash:      hashOf(byte(height), byte(height>>8), 0xB0),
			Height:    int64(height),
			PrevBlock: prev,
		},
		Transactions: txs,
	}
	for i, tx := range txs {
		tx.BlockHeight = int64(height)
		tx.BlockHash = block.Header.Hash
		tx.Index = uint32(i)
		c.txs[tx.TxHash] = tx
	}
	c.blocks[height] = block
	if height > c.tip {
		c.tip = height
	}
	return block
}

func hashOf(bytes ...byte) chainhash.Hash {
	var hash chainhash.Hash
	copy(hash[:], bytes)
	return hash
}

var (
	plainScript    = []byte{txscript.OP_1}
	taprootScript  = append([]byte{txscript.OP_1, txscript.OP_DATA_32}, make([]byte, 32)...)
	opReturnScript = []byte{txscript.OP_RETURN}
)

// newTx builds a transaction with the given output scripts. The first input
// spends the given outpoint; pass nil for a coinbase-like transaction.
func newTx(txHash chainhash.Hash, prevOut *wire.OutPoint, outputScripts ...[]byte) *types.Transaction {
	tx := &types.Transaction{
		TxHash: txHash,
		TxIn:   []*types.TxIn{},
		TxOut: lo.Map(outputScripts, func(pkScript []byte, _ int) *types.TxOut {
			return &types.TxOut{PkScript: pkScript, Value: 1000}
		}),
	}
	if prevOut != nil {
		tx.TxIn = append(tx.TxIn, &types.TxIn{
			PreviousOutTxHash: prevOut.Hash,
			PreviousOutIndex:  prevOut.Index,
		})
	}
	return tx
}

func setup(t *testing.T) (*memory.Store, *fakeBitcoinClient, *indexer.Indexer) {
	t.Helper()
	store := memory.New()
	client := newFakeClient()
	idx := indexer.New(store, client, indexer.WithNetwork(common.NetworkMainnet))
	return store, client, idx
}

func TestUpdateIndexesToTip(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	client.addBlock(startHeight)
	client.addBlock(startHeight + 1)

	require.NoError(t, idx.Update(ctx))

	height, err := idx.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, startHeight+1, height)

	hash, err := store.GetBlockHash(ctx, startHeight)
	require.NoError(t, err)
	assert.Equal(t, client.blocks[startHeight].Header.Hash, hash)
}

func TestGenesisRuneSeededOnMainnet(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)
	client.addBlock(startHeight)

	require.NoError(t, idx.Update(ctx))

	entry, err := store.GetRuneEntry(ctx, runes.RuneId{BlockHeight: 1, TxIndex: 0})
	require.NoError(t, err)
	assert.Equal(t, "UNCOMMON•GOODS", entry.SpacedRune.String())
	assert.Equal(t, '⧉', entry.Symbol)
	require.NotNil(t, entry.Terms)
	assert.True(t, entry.Terms.Amount.Equals64(1))
}

func TestEtchingWithoutNameAllocatesPremine(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	runestone := runes.Runestone{
		Etching: &runes.Etching{
			Premine: lo.ToPtr(uint128.From64(1000)),
		},
	}
	tx := newTx(hashOf(0xE1), nil, utils.Must(runestone.Encipher()), plainScript)
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	runeId := runes.RuneId{BlockHeight: startHeight, TxIndex: 0}
	entry, err := store.GetRuneEntry(ctx, runeId)
	require.NoError(t, err)
	assert.True(t, entry.SpacedRune.Rune.IsReserved())
	assert.True(t, entry.Premine.Equals64(1000))
	assert.EqualValues(t, 1, entry.Number) // 0 is the genesis rune

	// premine swept to the first non-OP_RETURN output
	balances, err := store.GetUtxoBalances(ctx, tx.OutPoint(1))
	require.NoError(t, err)
	assert.True(t, balances[runeId].Equals64(1000))
}

func TestEdictSplitsAcrossAllOutputs(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	// edict with output == output count splits the amount across all
	// non-OP_RETURN outputs, earlier outputs receiving the remainder
	runestone := runes.Runestone{
		Etching: &runes.Etching{
			Premine: lo.ToPtr(uint128.From64(10)),
		},
		Edicts: []runes.Edict{
			{Id: runes.RuneId{}, Amount: uint128.From64(10), Output: 4},
		},
	}
	tx := newTx(hashOf(0xE2), nil, utils.Must(runestone.Encipher()), plainScript, plainScript, plainScript)
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	runeId := runes.RuneId{BlockHeight: startHeight, TxIndex: 0}
	expected := []uint64{4, 3, 3}
	for i, amount := range expected {
		balances, err := store.GetUtxoBalances(ctx, tx.OutPoint(uint32(i+1)))
		require.NoError(t, err, "output %d", i+1)
		assert.True(t, balances[runeId].Equals64(amount), "output %d: got %s", i+1, balances[runeId])
	}
}

func TestMintRespectsCapAndWindow(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	runeId := runes.RuneId{BlockHeight: 100, TxIndex: 1}
	name := utils.Must(runes.NewRuneFromString("MINTTEST"))
	require.NoError(t, store.SetRuneEntry(ctx, &runes.RuneEntry{
		RuneId:     runeId,
		SpacedRune: runes.NewSpacedRune(name, 0),
		Terms: &runes.Terms{
			Amount: lo.ToPtr(uint128.From64(5)),
			Cap:    lo.ToPtr(uint128.From64(2)),
		},
	}))
	require.NoError(t, store.CommitBlock(ctx))

	mintScript := utils.Must(runes.Runestone{Mint: &runeId}.Encipher())
	mint1 := newTx(hashOf(0xA1), nil, mintScript, plainScript)
	mint2 := newTx(hashOf(0xA2), nil, mintScript, plainScript)
	mint3 := newTx(hashOf(0xA3), nil, mintScript, plainScript)
	client.addBlock(startHeight, mint1, mint2, mint3)

	require.NoError(t, idx.Update(ctx))

	entry, err := store.GetRuneEntry(ctx, runeId)
	require.NoError(t, err)
	assert.True(t, entry.Mints.Equals64(2), "got %s mints", entry.Mints)

	balances, err := store.GetUtxoBalances(ctx, mint1.OutPoint(1))
	require.NoError(t, err)
	assert.True(t, balances[runeId].Equals64(5))

	// third mint is over the cap and produces nothing
	_, err = store.GetUtxoBalances(ctx, mint3.OutPoint(1))
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestCenotaphBurnsInputAndMintedRunes(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	runeId := runes.RuneId{BlockHeight: 100, TxIndex: 1}
	name := utils.Must(runes.NewRuneFromString("BURNTEST"))
	require.NoError(t, store.SetRuneEntry(ctx, &runes.RuneEntry{
		RuneId:     runeId,
		SpacedRune: runes.NewSpacedRune(name, 0),
		Terms: &runes.Terms{
			Amount: lo.ToPtr(uint128.From64(5)),
			Cap:    lo.ToPtr(uint128.From64(10)),
		},
	}))
	funded := wire.OutPoint{Hash: hashOf(0xFD), Index: 0}
	require.NoError(t, store.SetUtxoBalances(ctx, funded, map[runes.RuneId]uint128.Uint128{
		runeId: uint128.From64(7),
	}))
	require.NoError(t, store.CommitBlock(ctx))

	// a runestone with an unrecognized even tag deciphers to a cenotaph that
	// still carries the mint
	payload := []byte{126, 0, 20, 100, 20, 1}
	cenotaphScript := utils.Must(txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(runes.RUNESTONE_PAYLOAD_MAGIC_NUMBER).
		AddData(payload).
		Script())
	tx := newTx(hashOf(0xC1), &funded, cenotaphScript, plainScript)
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	entry, err := store.GetRuneEntry(ctx, runeId)
	require.NoError(t, err)
	assert.True(t, entry.Mints.Equals64(1), "cenotaph mint still counts against the cap")
	assert.True(t, entry.BurnedAmount.Equals64(12), "input 7 plus minted 5 burned, got %s", entry.BurnedAmount)

	_, err = store.GetUtxoBalances(ctx, tx.OutPoint(1))
	assert.ErrorIs(t, err, errs.NotFound)
	_, err = store.GetUtxoBalances(ctx, funded)
	assert.ErrorIs(t, err, errs.NotFound, "spent outpoint is deleted")
}

func TestTransferWithoutRunestone(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	runeId := runes.RuneId{BlockHeight: 100, TxIndex: 1}
	funded := wire.OutPoint{Hash: hashOf(0xFE), Index: 3}
	require.NoError(t, store.SetUtxoBalances(ctx, funded, map[runes.RuneId]uint128.Uint128{
		runeId: uint128.From64(9),
	}))
	require.NoError(t, store.CommitBlock(ctx))

	tx := newTx(hashOf(0xD1), &funded, plainScript, plainScript)
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	balances, err := store.GetUtxoBalances(ctx, tx.OutPoint(0))
	require.NoError(t, err)
	assert.True(t, balances[runeId].Equals64(9))
	_, err = store.GetUtxoBalances(ctx, tx.OutPoint(1))
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestPointerToOpReturnBurns(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	runeId := runes.RuneId{BlockHeight: 100, TxIndex: 1}
	name := utils.Must(runes.NewRuneFromString("OPRETBURN"))
	require.NoError(t, store.SetRuneEntry(ctx, &runes.RuneEntry{
		RuneId:     runeId,
		SpacedRune: runes.NewSpacedRune(name, 0),
	}))
	funded := wire.OutPoint{Hash: hashOf(0xFB), Index: 0}
	require.NoError(t, store.SetUtxoBalances(ctx, funded, map[runes.RuneId]uint128.Uint128{
		runeId: uint128.From64(4),
	}))
	require.NoError(t, store.CommitBlock(ctx))

	runestone := runes.Runestone{Pointer: lo.ToPtr(uint32(0))}
	tx := newTx(hashOf(0xD2), &funded, utils.Must(runestone.Encipher()), plainScript)
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	entry, err := store.GetRuneEntry(ctx, runeId)
	require.NoError(t, err)
	assert.True(t, entry.BurnedAmount.Equals64(4))
	_, err = store.GetUtxoBalances(ctx, tx.OutPoint(1))
	assert.ErrorIs(t, err, errs.NotFound)
}

func commitWitness(rune runes.Rune) [][]byte {
	tapscript := utils.Must(txscript.NewScriptBuilder().AddData(rune.Commitment()).Script())
	controlBlock := make([]byte, 33)
	return [][]byte{tapscript, controlBlock}
}

func TestNamedEtchingRequiresMatureCommitment(t *testing.T) {
	newEtchTx := func(name runes.Rune, commitOut wire.OutPoint) *types.Transaction {
		runestone := runes.Runestone{
			Etching: &runes.Etching{
				Rune:    &name,
				Premine: lo.ToPtr(uint128.From64(100)),
			},
		}
		tx := newTx(hashOf(0xE7), &commitOut, utils.Must(runestone.Encipher()), plainScript)
		tx.TxIn[0].Witness = commitWitness(name)
		return tx
	}

	t.Run("mature_commitment_is_honored", func(t *testing.T) {
		ctx := context.Background()
		store, client, idx := setup(t)

		name := utils.Must(runes.NewRuneFromString(runes.MinimumRuneAtHeight(common.NetworkMainnet, startHeight).String()))
		commitTx := newTx(hashOf(0xCC), nil, taprootScript)
		client.addBlock(startHeight, commitTx)
		for height := startHeight + 1; height < startHeight+runes.RUNE_COMMIT_BLOCKS; height++ {
			client.addBlock(height)
		}
		client.addBlock(startHeight+runes.RUNE_COMMIT_BLOCKS, newEtchTx(name, commitTx.OutPoint(0)))

		require.NoError(t, idx.Update(ctx))

		entry, err := store.GetRuneEntryByRune(ctx, name)
		require.NoError(t, err)
		assert.True(t, entry.Premine.Equals64(100))
	})

	t.Run("immature_commitment_is_dropped", func(t *testing.T) {
		ctx := context.Background()
		store, client, idx := setup(t)

		name := utils.Must(runes.NewRuneFromString(runes.MinimumRuneAtHeight(common.NetworkMainnet, startHeight).String()))
		commitTx := newTx(hashOf(0xCD), nil, taprootScript)
		client.addBlock(startHeight, commitTx)
		client.addBlock(startHeight+1, newEtchTx(name, commitTx.OutPoint(0)))

		require.NoError(t, idx.Update(ctx))

		_, err := store.GetRuneEntryByRune(ctx, name)
		assert.ErrorIs(t, err, errs.NotFound)
	})

	t.Run("non_taproot_commitment_is_dropped", func(t *testing.T) {
		ctx := context.Background()
		store, client, idx := setup(t)

		name := utils.Must(runes.NewRuneFromString(runes.MinimumRuneAtHeight(common.NetworkMainnet, startHeight).String()))
		commitTx := newTx(hashOf(0xCE), nil, plainScript)
		client.addBlock(startHeight, commitTx)
		for height := startHeight + 1; height < startHeight+runes.RUNE_COMMIT_BLOCKS; height++ {
			client.addBlock(height)
		}
		client.addBlock(startHeight+runes.RUNE_COMMIT_BLOCKS, newEtchTx(name, commitTx.OutPoint(0)))

		require.NoError(t, idx.Update(ctx))

		_, err := store.GetRuneEntryByRune(ctx, name)
		assert.ErrorIs(t, err, errs.NotFound)
	})
}

func TestDuplicateNameEtchingIsDropped(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	name := utils.Must(runes.NewRuneFromString(runes.MinimumRuneAtHeight(common.NetworkMainnet, startHeight).String()))
	newEtchTx := func(txHash chainhash.Hash, commitOut wire.OutPoint) *types.Transaction {
		runestone := runes.Runestone{
			Etching: &runes.Etching{
				Rune:    &name,
				Premine: lo.ToPtr(uint128.From64(100)),
			},
		}
		tx := newTx(txHash, &commitOut, utils.Must(runestone.Encipher()), plainScript)
		tx.TxIn[0].Witness = commitWitness(name)
		return tx
	}

	commit1 := newTx(hashOf(0xCA), nil, taprootScript)
	commit2 := newTx(hashOf(0xCB), nil, taprootScript)
	client.addBlock(startHeight, commit1, commit2)
	for height := startHeight + 1; height < startHeight+runes.RUNE_COMMIT_BLOCKS; height++ {
		client.addBlock(height)
	}
	etch1 := newEtchTx(hashOf(0xEA), commit1.OutPoint(0))
	client.addBlock(startHeight+runes.RUNE_COMMIT_BLOCKS, etch1)
	// same name again, with its own mature commitment
	etch2 := newEtchTx(hashOf(0xEB), commit2.OutPoint(0))
	client.addBlock(startHeight+runes.RUNE_COMMIT_BLOCKS+1, etch2)

	require.NoError(t, idx.Update(ctx))

	entry, err := store.GetRuneEntryByRune(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, runes.RuneId{BlockHeight: startHeight + runes.RUNE_COMMIT_BLOCKS, TxIndex: 0}, entry.RuneId,
		"the first etching keeps the name")

	_, err = store.GetRuneEntry(ctx, runes.RuneId{BlockHeight: startHeight + runes.RUNE_COMMIT_BLOCKS + 1, TxIndex: 0})
	assert.ErrorIs(t, err, errs.NotFound, "the second etching creates no entry")
	_, err = store.GetUtxoBalances(ctx, etch2.OutPoint(1))
	assert.ErrorIs(t, err, errs.NotFound, "the dropped etching's premine is not credited")
}

func TestLockedNameIsDropped(t *testing.T) {
	ctx := context.Background()
	store, client, idx := setup(t)

	// a one-letter name is not unlocked at activation height
	name := utils.Must(runes.NewRuneFromString("A"))
	runestone := runes.Runestone{Etching: &runes.Etching{Rune: &name}}
	tx := newTx(hashOf(0xE8), nil, utils.Must(runestone.Encipher()), plainScript)
	tx.TxIn = append(tx.TxIn, &types.TxIn{Witness: commitWitness(name)})
	client.addBlock(startHeight, tx)

	require.NoError(t, idx.Update(ctx))

	_, err := store.GetRuneEntryByRune(ctx, name)
	assert.ErrorIs(t, err, errs.NotFound)
}

func TestReorgDetected(t *testing.T) {
	ctx := context.Background()
	_, client, idx := setup(t)

	client.addBlock(startHeight)
	require.NoError(t, idx.Update(ctx))

	// extend the chain with a block that does not link to the indexed tip
	next := client.addBlock(startHeight + 1)
	next.Header.PrevBlock = hashOf(0xDE, 0xAD)

	err := idx.Update(ctx)
	assert.ErrorIs(t, err, indexer.ErrReorgDetected)
}

func TestFailedBlockIsAborted(t *testing.T) {
	ctx := context.Background()
	_, client, idx := setup(t)

	client.addBlock(startHeight)
	require.NoError(t, idx.Update(ctx))

	// the etching references a commitment transaction the node cannot serve,
	// so processing the block must fail and leave the ledger untouched
	name := utils.Must(runes.NewRuneFromString(runes.MinimumRuneAtHeight(common.NetworkMainnet, startHeight).String()))
	runestone := runes.Runestone{Etching: &runes.Etching{Rune: &name}}
	missing := wire.OutPoint{Hash: hashOf(0x99), Index: 0}
	tx := newTx(hashOf(0xE9), &missing, utils.Must(runestone.Encipher()), plainScript)
	tx.TxIn[0].Witness = commitWitness(name)
	client.addBlock(startHeight+1, tx)

	require.Error(t, idx.Update(ctx))

	height, err := idx.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, startHeight, height)
}
