package runes

import (
	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/common/errs"
)

// Terms are the minting preconditions of a rune. Unset fields impose no bound.
type Terms struct {
	// Amount of the rune to be minted per mint transaction
	Amount *uint128.Uint128
	// Number of allowed mints
	Cap *uint128.Uint128
	// Block height at which the rune can start being minted. If both HeightStart and OffsetStart are set, use the higher value.
	HeightStart *uint64
	// Block height at which the rune can no longer be minted. If both HeightEnd and OffsetEnd are set, use the lower value.
	HeightEnd *uint64
	// Offset from etched block at which the rune can start being minted.
	OffsetStart *uint64
	// Offset from etched block at which the rune can no longer be minted.
	OffsetEnd *uint64
}

// Etching is the creation of a new rune with fixed metadata.
type Etching struct {
	// Number of decimals when displaying the rune
	Divisibility *uint8
	// Number of runes created during etching
	Premine *uint128.Uint128
	// Rune name. If absent, a reserved name is assigned at application time.
	Rune *Rune
	// Bitmap of spacers to be displayed between each letter of the rune name
	Spacers *uint32
	// Single Unicode codepoint to represent the rune
	Symbol *rune
	// Minting terms. If not provided, the rune is not mintable.
	Terms *Terms
	// Whether to opt in to future protocol changes, whatever they may be
	Turbo bool
}

const (
	// MaxDivisibility is the maximum number of decimals of a rune.
	MaxDivisibility uint8 = 38
	// MaxSpacers is the bitmask of all valid spacer positions.
	MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111
)

// Supply returns premine + terms.amount * terms.cap, the total possible supply
// of the etched rune. Overflow of uint128 is an error.
func (e Etching) Supply() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})

	amount := lo.FromPtr(terms.Amount)
	cap := lo.FromPtr(terms.Cap)
	premine := lo.FromPtr(e.Premine)

	result, overflow := amount.MulOverflow(cap)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	result, overflow = result.AddOverflow(premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return result, nil
}

// Commitment returns the bytes an etching transaction must reveal in a
// taproot witness for the etching to be honored, or nil if the etching has no
// rune name and needs no commitment.
func (e Etching) Commitment() []byte {
	if e.Rune == nil {
		return nil
	}
	return e.Rune.Commitment()
}
