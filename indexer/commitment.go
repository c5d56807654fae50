package indexer

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"

	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/runes"
)

// txCommitsToRune reports whether an input of tx reveals a tapscript
// containing a data push of the rune's commitment, spending a taproot output
// confirmed at least RUNE_COMMIT_BLOCKS before this transaction's block.
// Failures to fetch the previous transaction surface as errors so an etching
// is never silently dropped.
func (i *Indexer) txCommitsToRune(ctx context.Context, tx *types.Transaction, rune runes.Rune) (bool, error) {
	commitment := rune.Commitment()
	for _, txIn := range tx.TxIn {
		tapscript, ok := extractTapScript(txIn.Witness)
		if !ok {
			continue
		}
		for tapscript.Next() {
			if !bytes.Equal(tapscript.Data(), commitment) {
				continue
			}

			// the script alone cannot prove the spent output is P2TR; check
			// the previous transaction's pkScript
			prevTx, err := i.client.GetTransaction(ctx, txIn.PreviousOutTxHash)
			if err != nil {
				return false, errors.Wrapf(err, "failed to get previous tx %s", txIn.PreviousOutTxHash)
			}
			if txIn.PreviousOutIndex >= uint32(len(prevTx.TxOut)) {
				continue
			}
			if !txscript.IsPayToTaproot(prevTx.TxOut[txIn.PreviousOutIndex].PkScript) {
				continue
			}
			if tx.BlockHeight-prevTx.BlockHeight < runes.RUNE_COMMIT_BLOCKS {
				continue
			}

			return true, nil
		}
		// tokenizer errors mean a malformed tapscript; it simply does not
		// commit to anything
	}
	return false, nil
}

// extractTapScript returns a tokenizer over the tapscript of a taproot
// script-path witness, after stripping the annex if present.
func extractTapScript(witness [][]byte) (txscript.ScriptTokenizer, bool) {
	witness = removeAnnexFromWitness(witness)
	if len(witness) < 2 {
		return txscript.ScriptTokenizer{}, false
	}
	script := witness[len(witness)-2]
	return txscript.MakeScriptTokenizer(0, script), true
}

func removeAnnexFromWitness(witness [][]byte) [][]byte {
	if len(witness) >= 2 && len(witness[len(witness)-1]) > 0 && witness[len(witness)-1][0] == txscript.TaprootAnnexTag {
		return witness[:len(witness)-1]
	}
	return witness
}
