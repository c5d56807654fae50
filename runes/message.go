package runes

import (
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/core/types"
)

// Message is a partially decoded runestone: key-value fields plus the edict
// body, with any flaws found while walking the integer sequence.
type Message struct {
	Fields Fields
	Edicts []Edict
	Flaws  Flaws
}

// Fields maps tags to their values in payload order. Tags occurring multiple
// times keep all values; Take consumes them front to back.
type Fields map[Tag][]uint128.Uint128

// Take removes and returns the first remaining value for tag, or nil if the
// tag is absent.
func (fields Fields) Take(tag Tag) *uint128.Uint128 {
	values, ok := fields[tag]
	if !ok {
		return nil
	}
	first := values[0]
	values = values[1:]
	if len(values) == 0 {
		delete(fields, tag)
	} else {
		fields[tag] = values
	}
	return &first
}

// MessageFromIntegers parses the decoded varint sequence of a runestone
// payload. Integers before the Body tag are alternating tag-value pairs; every
// tag is collected, recognized or not, so that unconsumed even tags can later
// be flagged. Integers from the Body tag onward are edicts in groups of four.
func MessageFromIntegers(tx *types.Transaction, payload []uint128.Uint128) Message {
	flaws := Flaws(0)
	var edicts []Edict
	fields := make(Fields)

	for i := 0; i < len(payload); i += 2 {
		tag := Tag(payload[i])

		// all remaining integers are edicts
		if tag == TagBody {
			runeId := RuneId{}
			for _, chunk := range lo.Chunk(payload[i+1:], 4) {
				if len(chunk) != 4 {
					flaws |= FlawFlagTrailingIntegers.Mask()
					break
				}
				blockDelta, txIndexDelta, amount, output := chunk[0], chunk[1], chunk[2], chunk[3]
				if !blockDelta.IsUint64() || !txIndexDelta.IsUint32() {
					flaws |= FlawFlagEdictRuneId.Mask()
					break
				}
				next, err := runeId.Next(blockDelta.Uint64(), txIndexDelta.Uint32())
				if err != nil {
					flaws |= FlawFlagEdictRuneId.Mask()
					break
				}
				// output == len(tx.TxOut) is valid and means "all outputs"
				if !output.IsUint32() || output.Cmp64(uint64(len(tx.TxOut))) > 0 {
					flaws |= FlawFlagEdictOutput.Mask()
					break
				}
				runeId = next
				edicts = append(edicts, Edict{
					Id:     runeId,
					Amount: amount,
					Output: output.Uint32(),
				})
			}
			break
		}

		if i+1 >= len(payload) {
			flaws |= FlawFlagTruncatedField.Mask()
			break
		}
		fields[tag] = append(fields[tag], payload[i+1])
	}

	return Message{
		Flaws:  flaws,
		Edicts: edicts,
		Fields: fields,
	}
}
