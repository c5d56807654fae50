package runes

import (
	"github.com/gaze-network/uint128"
)

// Tag identifies a data field in a runestone. Tag codes are fixed by the
// protocol. Unrecognized odd tags are ignored for forward compatibility;
// unrecognized even tags produce a cenotaph.
type Tag uint128.Uint128

func NewTag(value uint64) Tag {
	return Tag(uint128.From64(value))
}

func (t Tag) Uint128() uint128.Uint128 {
	return uint128.Uint128(t)
}

// IsEven reports whether the tag has an even numeric code. Even tags carry
// consequential fields: an unrecognized even tag downgrades the message to a
// cenotaph, while odd tags may be safely ignored.
func (t Tag) IsEven() bool {
	return t.Uint128().Mod64(2) == 0
}

var (
	TagBody        = NewTag(0)
	TagFlags       = NewTag(2)
	TagRune        = NewTag(4)
	TagPremine     = NewTag(6)
	TagCap         = NewTag(8)
	TagAmount      = NewTag(10)
	TagHeightStart = NewTag(12)
	TagHeightEnd   = NewTag(14)
	TagOffsetStart = NewTag(16)
	TagOffsetEnd   = NewTag(18)
	TagMint        = NewTag(20)
	TagPointer     = NewTag(22)
	// TagCenotaph is never consumed; its presence marks a deliberate cenotaph
	// through the unrecognized-even-tag rule.
	TagCenotaph = NewTag(126)

	TagDivisibility = NewTag(1)
	TagSpacers      = NewTag(3)
	TagSymbol       = NewTag(5)
	// TagNop is never consumed; odd, so it is ignored.
	TagNop = NewTag(127)
)
