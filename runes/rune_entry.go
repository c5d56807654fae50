package runes

import (
	"math"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"
	"github.com/samber/lo"

	"github.com/runelight-network/runelight/common/errs"
)

// RuneEntry is the ledger state of an etched rune.
type RuneEntry struct {
	RuneId       RuneId
	Number       uint64
	Divisibility uint8
	// Premine is the amount of the rune allocated to the etcher at etch time.
	Premine    uint128.Uint128
	SpacedRune SpacedRune
	Symbol     rune
	// Terms are the minting terms of the rune. Nil means not mintable.
	Terms *Terms
	Turbo bool
	// Mints is the number of times this rune has been minted.
	Mints        uint128.Uint128
	BurnedAmount uint128.Uint128
	// Unmintable is set when the rune was etched by a cenotaph.
	Unmintable    bool
	EtchingTxHash chainhash.Hash
}

var (
	ErrUnmintable      = errors.New("rune is not mintable")
	ErrMintCapReached  = errors.New("rune mint cap reached")
	ErrMintBeforeStart = errors.New("rune minting has not started")
	ErrMintAfterEnd    = errors.New("rune minting has ended")
)

// GetMintableAmount returns the amount a single mint transaction in a block
// at the given height would produce, or an error describing why the rune
// cannot be minted.
func (e *RuneEntry) GetMintableAmount(height uint64) (uint128.Uint128, error) {
	if e.Terms == nil || e.Unmintable {
		return uint128.Uint128{}, ErrUnmintable
	}
	if !e.IsMintStarted(height) {
		return uint128.Uint128{}, ErrMintBeforeStart
	}
	if e.IsMintEnded(height) {
		return uint128.Uint128{}, ErrMintAfterEnd
	}
	var cap uint128.Uint128
	if e.Terms.Cap != nil {
		cap = *e.Terms.Cap
	}
	if e.Mints.Cmp(cap) >= 0 {
		return uint128.Uint128{}, ErrMintCapReached
	}
	var amount uint128.Uint128
	if e.Terms.Amount != nil {
		amount = *e.Terms.Amount
	}
	return amount, nil
}

// IsMintStarted reports whether minting is open at the given height. With both
// an absolute height start and an offset start, the later one wins.
func (e *RuneEntry) IsMintStarted(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64
	if e.Terms.OffsetStart != nil {
		relative = e.RuneId.BlockHeight + *e.Terms.OffsetStart
	}
	if e.Terms.HeightStart != nil {
		absolute = *e.Terms.HeightStart
	}

	return height >= max(relative, absolute)
}

// IsMintEnded reports whether minting is closed at the given height. With both
// an absolute height end and an offset end, the earlier one wins.
func (e *RuneEntry) IsMintEnded(height uint64) bool {
	if e.Terms == nil {
		return false
	}

	var relative, absolute uint64 = math.MaxUint64, math.MaxUint64
	if e.Terms.OffsetEnd != nil {
		relative = e.RuneId.BlockHeight + *e.Terms.OffsetEnd
	}
	if e.Terms.HeightEnd != nil {
		absolute = *e.Terms.HeightEnd
	}

	return height >= min(relative, absolute)
}

// Supply returns premine + terms.amount * terms.cap.
func (e RuneEntry) Supply() (uint128.Uint128, error) {
	terms := utils.Default(e.Terms, &Terms{})

	amount := lo.FromPtr(terms.Amount)
	cap := lo.FromPtr(terms.Cap)

	result, overflow := amount.MulOverflow(cap)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	result, overflow = result.AddOverflow(e.Premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return result, nil
}

// MintedAmount returns premine + mints * terms.amount.
func (e RuneEntry) MintedAmount() (uint128.Uint128, error) {
	var perMint uint128.Uint128
	if e.Terms != nil {
		perMint = lo.FromPtr(e.Terms.Amount)
	}
	amount, overflow := e.Mints.MulOverflow(perMint)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	amount, overflow = amount.AddOverflow(e.Premine)
	if overflow {
		return uint128.Uint128{}, errors.WithStack(errs.OverflowUint128)
	}
	return amount, nil
}
