package runes

import (
	"slices"
	"unicode/utf8"

	"github.com/btcsuite/btcd/txscript"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/common/errs"
	"github.com/runelight-network/runelight/core/types"
	"github.com/runelight-network/runelight/pkg/leb128"
)

const (
	// RUNESTONE_PAYLOAD_MAGIC_NUMBER follows OP_RETURN in a runestone output.
	RUNESTONE_PAYLOAD_MAGIC_NUMBER = txscript.OP_13
	// RUNE_COMMIT_BLOCKS is the number of confirmations an etching commitment
	// must have before the reveal transaction.
	RUNE_COMMIT_BLOCKS = 6
)

var (
	ErrDivisibilityTooLarge = errors.New("divisibility exceeds maximum")
	ErrSpacersOverflow      = errors.New("spacers exceed maximum")
	ErrScriptTooLarge       = errors.New("enciphered script exceeds maximum script size")
)

// Runestone is a valid, fully decoded runes protocol message.
type Runestone struct {
	// Rune to etch in this transaction
	Etching *Etching
	// The id of the rune to mint in this transaction
	Mint *RuneId
	// Transaction output to allocate leftover runes to. If nil, the first
	// non-OP_RETURN output is used. If the target output is OP_RETURN, those
	// runes are burned.
	Pointer *uint32
	// List of edicts to execute in this transaction
	Edicts []Edict
}

func (*Runestone) artifact() {}

func (r *Runestone) MintRuneId() *RuneId {
	return r.Mint
}

// Encipher encodes the runestone into a scriptPubKey, ready to be put into a
// transaction output. It rejects runestones that would decipher to a
// cenotaph for reasons knowable at encode time.
func (r Runestone) Encipher() ([]byte, error) {
	var payload []byte

	encodeUint128 := func(value uint128.Uint128) {
		payload = append(payload, leb128.EncodeUint128(value)...)
	}
	encodeTagValues := func(tag Tag, values ...uint128.Uint128) {
		for _, value := range values {
			encodeUint128(tag.Uint128())
			encodeUint128(value)
		}
	}
	encodeEdict := func(previousRuneId RuneId, edict Edict) {
		blockDelta, txIndexDelta := previousRuneId.Delta(edict.Id)
		encodeUint128(uint128.From64(blockDelta))
		encodeUint128(uint128.From64(uint64(txIndexDelta)))
		encodeUint128(edict.Amount)
		encodeUint128(uint128.From64(uint64(edict.Output)))
	}

	if r.Etching != nil {
		etching := r.Etching
		if etching.Divisibility != nil && *etching.Divisibility > MaxDivisibility {
			return nil, errors.WithStack(ErrDivisibilityTooLarge)
		}
		if etching.Spacers != nil && *etching.Spacers > MaxSpacers {
			return nil, errors.WithStack(ErrSpacersOverflow)
		}
		if _, err := etching.Supply(); err != nil {
			return nil, errors.Wrap(err, "cannot calculate supply")
		}

		flags := NewFlags(uint128.Zero)
		flags.Set(FlagEtching)
		if etching.Terms != nil {
			flags.Set(FlagTerms)
		}
		if etching.Turbo {
			flags.Set(FlagTurbo)
		}
		encodeTagValues(TagFlags, flags.Uint128())

		if etching.Rune != nil {
			encodeTagValues(TagRune, etching.Rune.Uint128())
		}
		if etching.Divisibility != nil {
			encodeTagValues(TagDivisibility, uint128.From64(uint64(*etching.Divisibility)))
		}
		if etching.Spacers != nil {
			encodeTagValues(TagSpacers, uint128.From64(uint64(*etching.Spacers)))
		}
		if etching.Symbol != nil {
			encodeTagValues(TagSymbol, uint128.From64(uint64(*etching.Symbol)))
		}
		if etching.Premine != nil {
			encodeTagValues(TagPremine, *etching.Premine)
		}
		if etching.Terms != nil {
			terms := etching.Terms
			if terms.Amount != nil {
				encodeTagValues(TagAmount, *terms.Amount)
			}
			if terms.Cap != nil {
				encodeTagValues(TagCap, *terms.Cap)
			}
			if terms.HeightStart != nil {
				encodeTagValues(TagHeightStart, uint128.From64(*terms.HeightStart))
			}
			if terms.HeightEnd != nil {
				encodeTagValues(TagHeightEnd, uint128.From64(*terms.HeightEnd))
			}
			if terms.OffsetStart != nil {
				encodeTagValues(TagOffsetStart, uint128.From64(*terms.OffsetStart))
			}
			if terms.OffsetEnd != nil {
				encodeTagValues(TagOffsetEnd, uint128.From64(*terms.OffsetEnd))
			}
		}
	}

	if r.Mint != nil {
		encodeTagValues(TagMint, uint128.From64(r.Mint.BlockHeight), uint128.From64(uint64(r.Mint.TxIndex)))
	}
	if r.Pointer != nil {
		encodeTagValues(TagPointer, uint128.From64(uint64(*r.Pointer)))
	}
	if len(r.Edicts) > 0 {
		encodeUint128(TagBody.Uint128())
		edicts := make([]Edict, len(r.Edicts))
		copy(edicts, r.Edicts)
		slices.SortFunc(edicts, func(i, j Edict) int {
			return i.Id.Cmp(j.Id)
		})
		var previousRuneId RuneId
		for _, edict := range edicts {
			encodeEdict(previousRuneId, edict)
			previousRuneId = edict.Id
		}
	}

	sb := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddOp(RUNESTONE_PAYLOAD_MAGIC_NUMBER)

	// chunk payload to MaxScriptElementSize
	for _, chunk := range lo.Chunk(payload, txscript.MaxScriptElementSize) {
		sb.AddData(chunk)
	}

	scriptPubKey, err := sb.Script()
	if err != nil {
		return nil, errors.Wrap(err, "cannot build scriptPubKey")
	}
	if len(scriptPubKey) > txscript.MaxScriptSize {
		return nil, errors.WithStack(ErrScriptTooLarge)
	}
	return scriptPubKey, nil
}

// DecipherRunestone deciphers the runes protocol message of a transaction.
// It returns a *Runestone for a valid message, a *Cenotaph for a malformed
// one, and nil if the transaction carries no message at all.
func DecipherRunestone(tx *types.Transaction) (Artifact, error) {
	payload, flaws := runestonePayloadFromTx(tx)
	if flaws != 0 {
		return &Cenotaph{Flaws: flaws}, nil
	}
	if payload == nil {
		return nil, nil
	}

	integers, err := decodeLEB128VarIntsFromPayload(payload)
	if err != nil {
		return &Cenotaph{Flaws: FlawFlagVarInt.Mask()}, nil
	}

	message := MessageFromIntegers(tx, integers)
	edicts, fields := message.Edicts, message.Fields
	flaws |= message.Flaws

	flags := NewFlags(lo.FromPtr(fields.Take(TagFlags)))

	var etching *Etching
	if flags.Take(FlagEtching) {
		divisibilityU128 := fields.Take(TagDivisibility)
		if divisibilityU128 != nil && divisibilityU128.Cmp64(uint64(MaxDivisibility)) > 0 {
			divisibilityU128 = nil
		}
		spacersU128 := fields.Take(TagSpacers)
		if spacersU128 != nil && spacersU128.Cmp64(uint64(MaxSpacers)) > 0 {
			spacersU128 = nil
		}
		symbolU128 := fields.Take(TagSymbol)
		if symbolU128 != nil && symbolU128.Cmp64(utf8.MaxRune) > 0 {
			symbolU128 = nil
		}

		var terms *Terms
		if flags.Take(FlagTerms) {
			var heightStart, heightEnd, offsetStart, offsetEnd *uint64
			if value := fields.Take(TagHeightStart); value != nil && value.IsUint64() {
				heightStart = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagHeightEnd); value != nil && value.IsUint64() {
				heightEnd = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagOffsetStart); value != nil && value.IsUint64() {
				offsetStart = lo.ToPtr(value.Uint64())
			}
			if value := fields.Take(TagOffsetEnd); value != nil && value.IsUint64() {
				offsetEnd = lo.ToPtr(value.Uint64())
			}
			terms = &Terms{
				Amount:      fields.Take(TagAmount),
				Cap:         fields.Take(TagCap),
				HeightStart: heightStart,
				HeightEnd:   heightEnd,
				OffsetStart: offsetStart,
				OffsetEnd:   offsetEnd,
			}
		}

		var divisibility *uint8
		if divisibilityU128 != nil {
			divisibility = lo.ToPtr(divisibilityU128.Uint8())
		}
		var spacers *uint32
		if spacersU128 != nil {
			spacers = lo.ToPtr(spacersU128.Uint32())
		}
		var symbol *rune
		if symbolU128 != nil {
			symbol = lo.ToPtr(rune(symbolU128.Uint32()))
		}

		etching = &Etching{
			Divisibility: divisibility,
			Premine:      fields.Take(TagPremine),
			Rune:         (*Rune)(fields.Take(TagRune)),
			Spacers:      spacers,
			Symbol:       symbol,
			Terms:        terms,
			Turbo:        flags.Take(FlagTurbo),
		}
	}

	var mint *RuneId
	if len(fields[TagMint]) >= 2 {
		mintRuneIdBlock := lo.FromPtr(fields.Take(TagMint))
		mintRuneIdTx := lo.FromPtr(fields.Take(TagMint))
		if mintRuneIdBlock.IsUint64() && mintRuneIdTx.IsUint32() {
			runeId, err := NewRuneId(mintRuneIdBlock.Uint64(), mintRuneIdTx.Uint32())
			if err != nil {
				flaws |= FlawFlagUnrecognizedEvenTag.Mask()
			} else {
				mint = &runeId
			}
		} else {
			flaws |= FlawFlagUnrecognizedEvenTag.Mask()
		}
	}

	var pointer *uint32
	if pointerU128 := fields.Take(TagPointer); pointerU128 != nil {
		if pointerU128.IsUint32() && pointerU128.Cmp64(uint64(len(tx.TxOut))) < 0 {
			pointer = lo.ToPtr(pointerU128.Uint32())
		} else {
			// a pointer at or past the output count is treated the same as an
			// out-of-range edict output
			flaws |= FlawFlagEdictOutput.Mask()
		}
	}

	if etching != nil {
		if _, err := etching.Supply(); err != nil {
			if errors.Is(err, errs.OverflowUint128) {
				flaws |= FlawFlagSupplyOverflow.Mask()
			} else {
				return nil, errors.Wrap(err, "cannot calculate supply")
			}
		}
	}

	if !flags.Uint128().IsZero() {
		flaws |= FlawFlagUnrecognizedFlag.Mask()
	}
	leftoverEvenTags := lo.Filter(lo.Keys(fields), func(tag Tag, _ int) bool {
		return tag.IsEven()
	})
	if len(leftoverEvenTags) != 0 {
		flaws |= FlawFlagUnrecognizedEvenTag.Mask()
	}

	if flaws != 0 {
		var cenotaphRune *Rune
		if etching != nil {
			// keep the rune name so it is still allocated and unclaimable
			cenotaphRune = etching.Rune
		}
		return &Cenotaph{
			Flaws:   flaws,
			Etching: cenotaphRune,
			Mint:    mint,
		}, nil
	}

	return &Runestone{
		Etching: etching,
		Mint:    mint,
		Edicts:  edicts,
		Pointer: pointer,
	}, nil
}

// runestonePayloadFromTx finds the first output starting with
// OP_RETURN OP_13 and concatenates its remaining data pushes. Errors after the
// output is selected are flaws, not reasons to keep searching.
func runestonePayloadFromTx(tx *types.Transaction) ([]byte, Flaws) {
	for _, output := range tx.TxOut {
		tokenizer := txscript.MakeScriptTokenizer(0, output.PkScript)

		if ok := tokenizer.Next(); !ok {
			continue
		}
		if tokenizer.Err() != nil {
			continue
		}
		if tokenizer.Opcode() != txscript.OP_RETURN {
			continue
		}

		if ok := tokenizer.Next(); !ok {
			continue
		}
		if tokenizer.Err() != nil {
			continue
		}
		if tokenizer.Opcode() != RUNESTONE_PAYLOAD_MAGIC_NUMBER {
			continue
		}

		payload := make([]byte, 0)
		for tokenizer.Next() {
			if !isDataPushOpCode(tokenizer.Opcode()) {
				return nil, FlawFlagOpCode.Mask()
			}
			payload = append(payload, tokenizer.Data()...)
		}
		if tokenizer.Err() != nil {
			return nil, FlawFlagInvalidScript.Mask()
		}

		return payload, Flaws(0)
	}

	return nil, 0
}

func decodeLEB128VarIntsFromPayload(payload []byte) ([]uint128.Uint128, error) {
	integers := make([]uint128.Uint128, 0)
	i := 0
	for i < len(payload) {
		n, length, err := leb128.DecodeUint128(payload[i:])
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode LEB128 varint")
		}
		integers = append(integers, n)
		i += length
	}
	return integers, nil
}

// isDataPushOpCode includes OP_0, OP_DATA_1 to OP_DATA_75, OP_PUSHDATA1,
// OP_PUSHDATA2 and OP_PUSHDATA4.
func isDataPushOpCode(opCode byte) bool {
	return opCode <= txscript.OP_PUSHDATA4
}
