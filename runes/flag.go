package runes

import (
	"github.com/gaze-network/uint128"
)

// Flag represents a single flag that can be set on a runestone.
type Flag uint8

const (
	FlagEtching = Flag(0)
	FlagTerms   = Flag(1)
	FlagTurbo   = Flag(2)
	// FlagCenotaph is never consumed; setting it marks a deliberate cenotaph
	// through the unrecognized-flag rule.
	FlagCenotaph = Flag(7)
)

func (f Flag) Mask() Flags {
	return Flags(uint128.From64(1).Lsh(uint(f)))
}

// Flags is a bitmask of flags that can be set on a runestone.
type Flags uint128.Uint128

func NewFlags(value uint128.Uint128) Flags {
	return Flags(value)
}

func (f Flags) Uint128() uint128.Uint128 {
	return uint128.Uint128(f)
}

func (f Flags) And(other Flags) Flags {
	return Flags(f.Uint128().And(other.Uint128()))
}

func (f Flags) Or(other Flags) Flags {
	return Flags(f.Uint128().Or(other.Uint128()))
}

// Take reports whether the flag is set and clears it.
func (f *Flags) Take(flag Flag) bool {
	found := !f.And(flag.Mask()).Uint128().IsZero()
	if found {
		// f = f - (1 << flag)
		*f = Flags(f.Uint128().Sub(flag.Mask().Uint128()))
	}
	return found
}

func (f *Flags) Set(flag Flag) {
	// f = f | (1 << flag)
	*f = f.Or(flag.Mask())
}
