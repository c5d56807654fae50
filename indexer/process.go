package indexer

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/runes"
)

func (i *Indexer) processBlock(ctx context.Context, block *types.Block) error {
	for _, tx := range block.Transactions {
		if err := i.processTx(ctx, tx); err != nil {
			return errors.Wrapf(err, "failed to process tx %s", tx.TxHash)
		}
	}
	return nil
}

// processTx applies a transaction to the ledger: spend input balances, apply
// the mint, etch the rune, execute the edicts, sweep leftovers to the pointer
// output, and burn whatever ends up on OP_RETURN outputs or has nowhere to go.
func (i *Indexer) processTx(ctx context.Context, tx *types.Transaction) error {
	artifact, err := runes.DecipherRunestone(tx)
	if err != nil {
		return errors.Wrap(err, "failed to decipher runestone")
	}

	unallocated, err := i.spendInputs(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "failed to spend input balances")
	}

	allocated := make(map[int]map[runes.RuneId]uint128.Uint128)
	allocate := func(output int, runeId runes.RuneId, amount uint128.Uint128) {
		if _, ok := unallocated[runeId]; !ok {
			return
		}
		// cap amount to the unallocated amount
		if amount.Cmp(unallocated[runeId]) > 0 {
			amount = unallocated[runeId]
		}
		if amount.IsZero() {
			return
		}
		if _, ok := allocated[output]; !ok {
			allocated[output] = make(map[runes.RuneId]uint128.Uint128)
		}
		allocated[output][runeId] = allocated[output][runeId].Add(amount)
		unallocated[runeId] = unallocated[runeId].Sub(amount)
	}

	burned := make(map[runes.RuneId]uint128.Uint128)
	var pointer *uint32
	cenotaph := false

	switch a := artifact.(type) {
	case *runes.Cenotaph:
		cenotaph = true
		// a cenotaph mint still counts against the cap; the minted amount
		// joins the unallocated pool and is burned below with everything else
		if a.Mint != nil {
			amount, err := i.mint(ctx, *a.Mint, uint64(tx.BlockHeight))
			if err != nil {
				return errors.Wrap(err, "error during mint")
			}
			unallocated[*a.Mint] = unallocated[*a.Mint].Add(amount)
		}
		if a.Etching != nil {
			etchedRune, ok, err := i.checkEtchedRuneName(ctx, tx, *a.Etching)
			if err != nil {
				return errors.Wrap(err, "error during etched rune name check")
			}
			if ok {
				runeId, err := runes.NewRuneId(uint64(tx.BlockHeight), tx.Index)
				if err != nil {
					return errors.Wrap(err, "failed to create rune id")
				}
				// the name is taken but the rune is unmintable and has no
				// premine, terms or metadata
				if err := i.createRuneEntry(ctx, runeId, etchedRune, nil, tx, true); err != nil {
					return errors.Wrap(err, "failed to create rune entry")
				}
			}
		}

	case *runes.Runestone:
		if a.Mint != nil {
			amount, err := i.mint(ctx, *a.Mint, uint64(tx.BlockHeight))
			if err != nil {
				return errors.Wrap(err, "error during mint")
			}
			unallocated[*a.Mint] = unallocated[*a.Mint].Add(amount)
		}

		etching, etchedRuneId, etchedRune, err := i.getEtchedRune(ctx, tx, a)
		if err != nil {
			return errors.Wrap(err, "error during getting etched rune")
		}

		if etching != nil {
			premine := lo.FromPtr(etching.Premine)
			if !premine.IsZero() {
				unallocated[etchedRuneId] = unallocated[etchedRuneId].Add(premine)
			}
		}

		for _, edict := range a.Edicts {
			// checked when the message was parsed
			if edict.Output > uint32(len(tx.TxOut)) {
				return errors.New("edict output index is out of range")
			}

			// the zero rune id refers to the rune etched in this transaction
			if edict.Id == (runes.RuneId{}) {
				if etching == nil {
					continue
				}
				edict.Id = etchedRuneId
			}

			if edict.Output == uint32(len(tx.TxOut)) {
				destinations := make([]int, 0, len(tx.TxOut))
				for outIdx, txOut := range tx.TxOut {
					if !txOut.IsOpReturn() {
						destinations = append(destinations, outIdx)
					}
				}
				if len(destinations) == 0 {
					continue
				}

				// divide evenly across destinations; earlier outputs receive
				// the remainder one unit at a time
				total := edict.Amount
				if total.IsZero() {
					total = unallocated[edict.Id]
				}
				amount, remainder := total.QuoRem64(uint64(len(destinations)))
				for destIdx, dest := range destinations {
					allocate(dest, edict.Id, lo.Ternary(uint64(destIdx) < remainder, amount.Add64(1), amount))
				}
			} else {
				amount := edict.Amount
				if amount.IsZero() {
					amount = unallocated[edict.Id]
				}
				allocate(int(edict.Output), edict.Id, amount)
			}
		}

		if etching != nil {
			if err := i.createRuneEntry(ctx, etchedRuneId, etchedRune, etching, tx, false); err != nil {
				return errors.Wrap(err, "failed to create rune entry")
			}
		}

		pointer = a.Pointer

	case nil:
		// no protocol message; input runes pass through to the first
		// non-OP_RETURN output
	}

	if cenotaph {
		// all input and minted runes of a cenotaph are burned
		for runeId, amount := range unallocated {
			burned[runeId] = burned[runeId].Add(amount)
		}
	} else {
		// leftovers go to the pointer output, or the first non-OP_RETURN
		// output when no pointer is set
		var target *int
		if pointer != nil && int(*pointer) < len(tx.TxOut) {
			target = lo.ToPtr(int(*pointer))
		}
		if target == nil {
			for outIdx, txOut := range tx.TxOut {
				if !txOut.IsOpReturn() {
					target = lo.ToPtr(outIdx)
					break
				}
			}
		}

		if target != nil {
			for runeId, amount := range unallocated {
				allocate(*target, runeId, amount)
			}
		} else {
			for runeId, amount := range unallocated {
				burned[runeId] = burned[runeId].Add(amount)
			}
		}
	}

	for output, balances := range allocated {
		if tx.TxOut[output].IsOpReturn() {
			// runes allocated to OP_RETURN outputs are burned
			for runeId, amount := range balances {
				burned[runeId] = burned[runeId].Add(amount)
			}
			continue
		}
		if err := i.storage.SetUtxoBalances(ctx, tx.OutPoint(uint32(output)), balances); err != nil {
			return errors.Wrap(err, "failed to set utxo balances")
		}
	}

	for runeId, amount := range burned {
		if amount.IsZero() {
			continue
		}
		if err := i.storage.AddBurned(ctx, runeId, amount); err != nil {
			return errors.Wrap(err, "failed to add burned amount")
		}
	}
	return nil
}

// spendInputs collects the rune balances held by the transaction's inputs and
// removes the spent outpoints from storage.
func (i *Indexer) spendInputs(ctx context.Context, tx *types.Transaction) (map[runes.RuneId]uint128.Uint128, error) {
	unallocated := make(map[runes.RuneId]uint128.Uint128)
	for _, txIn := range tx.TxIn {
		outPoint := wire.OutPoint{
			Hash:  txIn.PreviousOutTxHash,
			Index: txIn.PreviousOutIndex,
		}
		balances, err := i.storage.GetUtxoBalances(ctx, outPoint)
		if err != nil {
			if errors.Is(err, errs.NotFound) {
				continue
			}
			return nil, errors.Wrap(err, "failed to get utxo balances")
		}
		for runeId, balance := range balances {
			unallocated[runeId] = unallocated[runeId].Add(balance)
		}
		if err := i.storage.DeleteUtxoBalances(ctx, outPoint); err != nil {
			return nil, errors.Wrap(err, "failed to delete utxo balances")
		}
	}
	return unallocated, nil
}

// mint returns the amount produced by minting the rune at the given height
// and increments the mint counter. Mints of unknown or closed runes produce
// nothing without being an error.
func (i *Indexer) mint(ctx context.Context, runeId runes.RuneId, height uint64) (uint128.Uint128, error) {
	runeEntry, err := i.storage.GetRuneEntry(ctx, runeId)
	if err != nil {
		if errors.Is(err, errs.NotFound) {
			return uint128.Zero, nil
		}
		return uint128.Uint128{}, errors.Wrap(err, "failed to get rune entry")
	}

	amount, err := runeEntry.GetMintableAmount(height)
	if err != nil {
		return uint128.Zero, nil
	}

	if err := i.storage.IncrementMints(ctx, runeId); err != nil {
		return uint128.Uint128{}, errors.Wrap(err, "failed to increment mints")
	}
	return amount, nil
}

// getEtchedRune resolves the rune etched by the runestone, or nil if the
// etching is not honored. A named etching must clear the unlock schedule, not
// collide with an existing or reserved name, and be committed to by an input;
// a nameless etching receives a reserved name.
func (i *Indexer) getEtchedRune(ctx context.Context, tx *types.Transaction, runestone *runes.Runestone) (*runes.Etching, runes.RuneId, runes.Rune, error) {
	if runestone.Etching == nil {
		return nil, runes.RuneId{}, runes.Rune{}, nil
	}
	rune := runestone.Etching.Rune
	if rune != nil {
		etchedRune, ok, err := i.checkEtchedRuneName(ctx, tx, *rune)
		if err != nil {
			return nil, runes.RuneId{}, runes.Rune{}, err
		}
		if !ok {
			return nil, runes.RuneId{}, runes.Rune{}, nil
		}
		rune = &etchedRune
	} else {
		rune = lo.ToPtr(runes.GetReservedRune(uint64(tx.BlockHeight), tx.Index))
	}

	runeId, err := runes.NewRuneId(uint64(tx.BlockHeight), tx.Index)
	if err != nil {
		return nil, runes.RuneId{}, runes.Rune{}, errors.Wrap(err, "failed to create rune id")
	}
	return runestone.Etching, runeId, *rune, nil
}

// checkEtchedRuneName validates a named etching: the name must be unlocked at
// this height, not reserved, not already etched, and committed to by a mature
// taproot input.
func (i *Indexer) checkEtchedRuneName(ctx context.Context, tx *types.Transaction, rune runes.Rune) (runes.Rune, bool, error) {
	minimumRune := runes.MinimumRuneAtHeight(i.network, uint64(tx.BlockHeight))
	if rune.Cmp(minimumRune) < 0 || rune.IsReserved() {
		return runes.Rune{}, false, nil
	}

	_, err := i.storage.GetRuneEntryByRune(ctx, rune)
	if err != nil && !errors.Is(err, errs.NotFound) {
		return runes.Rune{}, false, errors.Wrap(err, "failed to get rune entry by rune")
	}
	if err == nil {
		// duplicate name
		return runes.Rune{}, false, nil
	}

	commit, err := i.txCommitsToRune(ctx, tx, rune)
	if err != nil {
		return runes.Rune{}, false, errors.Wrap(err, "error during commitment check")
	}
	if !commit {
		return runes.Rune{}, false, nil
	}
	return rune, true, nil
}

// createRuneEntry records a newly etched rune. Cenotaph etchings produce an
// entry with the name only.
func (i *Indexer) createRuneEntry(ctx context.Context, runeId runes.RuneId, rune runes.Rune, etching *runes.Etching, tx *types.Transaction, unmintable bool) error {
	number, err := i.storage.GetRuneCount(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get rune count")
	}

	var runeEntry *runes.RuneEntry
	if unmintable || etching == nil {
		runeEntry = &runes.RuneEntry{
			RuneId:        runeId,
			Number:        number,
			SpacedRune:    runes.NewSpacedRune(rune, 0),
			Unmintable:    true,
			EtchingTxHash: tx.TxHash,
		}
	} else {
		runeEntry = &runes.RuneEntry{
			RuneId:        runeId,
			Number:        number,
			SpacedRune:    runes.NewSpacedRune(rune, lo.FromPtr(etching.Spacers)),
			Symbol:        lo.FromPtr(etching.Symbol),
			Divisibility:  lo.FromPtr(etching.Divisibility),
			Premine:       lo.FromPtr(etching.Premine),
			Terms:         etching.Terms,
			Turbo:         etching.Turbo,
			EtchingTxHash: tx.TxHash,
		}
	}
	if err := i.storage.SetRuneEntry(ctx, runeEntry); err != nil {
		return errors.Wrap(err, "failed to set rune entry")
	}
	return nil
}
