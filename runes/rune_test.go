package runes

import (
	"testing"

	"github.com/gaze-network/uint128"
	"github.com/stretchr/testify/assert"

	"github.com/runelight-network/runelight/common"
)

func TestRuneString(t *testing.T) {
	tests := []struct {
		value    uint64
		expected string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{2055900680524219742, "UNCOMMONGOODS"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NewRune(tt.value).String())
	}
}

func TestNewRuneFromString(t *testing.T) {
	t.Run("parses_valid_names", func(t *testing.T) {
		for _, name := range []string{"A", "Z", "AA", "UNCOMMONGOODS", "BCGDENLQRQWDSLRUGSNLBTMFIJAV"} {
			rune, err := NewRuneFromString(name)
			assert.NoError(t, err)
			assert.Equal(t, name, rune.String())
		}
	})
	t.Run("parses_known_value", func(t *testing.T) {
		rune, err := NewRuneFromString("UNCOMMONGOODS")
		assert.NoError(t, err)
		assert.True(t, rune.Uint128().Equals64(2055900680524219742))
	})
	t.Run("rejects_empty_name", func(t *testing.T) {
		_, err := NewRuneFromString("")
		assert.ErrorIs(t, err, ErrRuneNameEmpty)
	})
	t.Run("rejects_lowercase", func(t *testing.T) {
		_, err := NewRuneFromString("abc")
		assert.ErrorIs(t, err, ErrInvalidBase26)
	})
	t.Run("rejects_names_over_28_letters", func(t *testing.T) {
		_, err := NewRuneFromString("AAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
		assert.ErrorIs(t, err, ErrRuneNameTooLong)
	})
	t.Run("rejects_28_letter_names_above_max_value", func(t *testing.T) {
		// the largest rune is BCGDENLQRQWDSLRUGSNLBTMFIJAV; one step past it
		// does not fit in a uint128
		_, err := NewRuneFromString("BCGDENLQRQWDSLRUGSNLBTMFIJAW")
		assert.ErrorIs(t, err, ErrRuneNameTooLong)
	})
}

func TestCommitment(t *testing.T) {
	t.Run("zero_rune_has_empty_commitment", func(t *testing.T) {
		assert.Empty(t, NewRune(0).Commitment())
	})
	t.Run("little_endian_with_trailing_zeroes_trimmed", func(t *testing.T) {
		assert.Equal(t, []byte{0x01}, NewRune(1).Commitment())
		assert.Equal(t, []byte{0x00, 0x01}, NewRune(256).Commitment())
		assert.Equal(t, []byte{0xFF, 0x01}, NewRune(511).Commitment())
	})
}

func TestIsReserved(t *testing.T) {
	assert.False(t, NewRune(0).IsReserved())
	unreserved, err := NewRuneFromString("AAAAAAAAAAAAAAAAAAAAAAAAAA") // 26 letters
	assert.NoError(t, err)
	assert.False(t, unreserved.IsReserved())
	reserved, err := NewRuneFromString("AAAAAAAAAAAAAAAAAAAAAAAAAAA") // 27 letters
	assert.NoError(t, err)
	assert.True(t, reserved.IsReserved())
}

func TestGetReservedRune(t *testing.T) {
	t.Run("first_reserved_rune", func(t *testing.T) {
		assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAAAAAAA", GetReservedRune(0, 0).String())
	})
	t.Run("packs_block_and_tx_index", func(t *testing.T) {
		base := GetReservedRune(0, 0).Uint128()
		assert.True(t, GetReservedRune(0, 1).Uint128().Equals(base.Add64(1)))
		assert.True(t, GetReservedRune(1, 0).Uint128().Equals(base.Add64(1<<32)))
	})
	t.Run("reserved_runes_are_reserved", func(t *testing.T) {
		assert.True(t, GetReservedRune(840000, 123).IsReserved())
	})
}

func TestFirstRuneHeight(t *testing.T) {
	assert.EqualValues(t, 840_000, FirstRuneHeight(common.NetworkMainnet))
	assert.EqualValues(t, 2_520_000, FirstRuneHeight(common.NetworkTestnet))
}

func TestMinimumRuneAtHeight(t *testing.T) {
	start := FirstRuneHeight(common.NetworkMainnet)
	end := start + common.HalvingInterval
	interval := uint64(common.HalvingInterval / 12)

	t.Run("thirteen_letters_before_activation", func(t *testing.T) {
		assert.Equal(t, "AAAAAAAAAAAAA", MinimumRuneAtHeight(common.NetworkMainnet, 0).String())
		assert.Equal(t, "AAAAAAAAAAAAA", MinimumRuneAtHeight(common.NetworkMainnet, start-1).String())
	})
	t.Run("single_letter_after_unlock_end", func(t *testing.T) {
		assert.Equal(t, "A", MinimumRuneAtHeight(common.NetworkMainnet, end-1).String())
		assert.Equal(t, "A", MinimumRuneAtHeight(common.NetworkMainnet, end).String())
	})
	t.Run("name_length_shrinks_one_step_per_interval", func(t *testing.T) {
		for step := uint64(0); step < 12; step++ {
			// the last height before the step boundary sits exactly on the
			// interpolation floor of the step
			height := start + step*interval - 1
			minimum := MinimumRuneAtHeight(common.NetworkMainnet, height)
			assert.Len(t, minimum.String(), int(13-step), "height %d", height)
		}
	})
	t.Run("monotonically_decreasing", func(t *testing.T) {
		previous := MinimumRuneAtHeight(common.NetworkMainnet, start-1)
		for height := start; height < start+1000; height += 97 {
			current := MinimumRuneAtHeight(common.NetworkMainnet, height)
			assert.LessOrEqual(t, current.Cmp(previous), 0, "height %d", height)
			previous = current
		}
	})
}

func TestMinimumRuneInterpolation(t *testing.T) {
	start := FirstRuneHeight(common.NetworkMainnet)
	// exactly at activation the minimum is the full 13-letter floor
	assert.True(t, MinimumRuneAtHeight(common.NetworkMainnet, start-1).Uint128().Equals(unlockSteps[12]))
	// one block in, the minimum has moved off the floor
	assert.True(t, MinimumRuneAtHeight(common.NetworkMainnet, start).Uint128().Cmp(unlockSteps[12]) < 0)
}

func TestRuneCmp(t *testing.T) {
	assert.Equal(t, -1, NewRune(1).Cmp(NewRune(2)))
	assert.Equal(t, 0, NewRune(2).Cmp(NewRune(2)))
	assert.Equal(t, 1, NewRuneFromUint128(uint128.Max).Cmp(NewRune(2)))
}
