package runes

import (
	"math/big"
	"slices"

	"github.com/Cleverse/go-utilities/utils"
	"github.com/cockroachdb/errors"
	"github.com/gaze-network/uint128"

	"github.com/runelight-network/runelight/common"
	"github.com/runelight-network/runelight/common/errs"
)

// Rune is the numeric identifier of a rune. It is displayed as a modified
// base-26 string over the letters A-Z.
type Rune uint128.Uint128

func NewRune(value uint64) Rune {
	return Rune(uint128.From64(value))
}

func NewRuneFromUint128(value uint128.Uint128) Rune {
	return Rune(value)
}

// MaxRuneNameLength is the maximum number of letters in a rune name.
const MaxRuneNameLength = 28

var (
	ErrInvalidBase26   = errs.ErrorKind("invalid base-26 character: must be in the range [A-Z]")
	ErrRuneNameEmpty   = errs.ErrorKind("rune name must contain at least one character")
	ErrRuneNameTooLong = errs.ErrorKind("rune name exceeds maximum length")
)

var (
	bigOne = big.NewInt(1)
	big26  = big.NewInt(26)
)

// NewRuneFromString parses a rune name in modified base-26.
func NewRuneFromString(value string) (Rune, error) {
	if len(value) == 0 {
		return Rune{}, errors.WithStack(ErrRuneNameEmpty)
	}
	if len(value) > MaxRuneNameLength {
		return Rune{}, errors.WithStack(ErrRuneNameTooLong)
	}
	x := new(big.Int)
	for i, char := range value {
		if i > 0 {
			x.Add(x, bigOne)
		}
		x.Mul(x, big26)
		if char < 'A' || char > 'Z' {
			return Rune{}, errors.WithStack(ErrInvalidBase26)
		}
		x.Add(x, big.NewInt(int64(char-'A')))
	}
	n, err := uint128.FromBig(x)
	if err != nil {
		return Rune{}, errors.Join(err, ErrRuneNameTooLong)
	}
	return Rune(n), nil
}

func (r Rune) Uint128() uint128.Uint128 {
	return uint128.Uint128(r)
}

func (r Rune) Cmp(other Rune) int {
	return r.Uint128().Cmp(other.Uint128())
}

// String returns the rune name in modified base-26.
func (r Rune) String() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// value = r + 1
	value := new(big.Int).Add(r.Uint128().Big(), bigOne)
	var encoded []byte
	for value.Sign() > 0 {
		// idx = (value - 1) % 26
		idx := new(big.Int).Mod(new(big.Int).Sub(value, bigOne), big26).Int64()
		encoded = append(encoded, chars[idx])
		// value = (value - 1) / 26
		value = new(big.Int).Div(new(big.Int).Sub(value, bigOne), big26)
	}
	slices.Reverse(encoded)
	return string(encoded)
}

// Commitment returns the commitment of the rune: the little-endian encoding of
// its value with trailing zero bytes trimmed. An etching of this rune is only
// honored if the commitment appears in a tapscript of one of the etching
// transaction's inputs.
func (r Rune) Commitment() []byte {
	bytes := r.Uint128().Big().Bytes()
	slices.Reverse(bytes)
	return bytes
}

func mustUint128FromString(value string) uint128.Uint128 {
	bi, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid base-10 integer literal")
	}
	return utils.Must(uint128.FromBig(bi))
}

// firstReservedRune is the value of AAAAAAAAAAAAAAAAAAAAAAAAAAA, the first
// rune reserved for etchings that omit a rune name.
var firstReservedRune = mustUint128FromString("6402364363415443603228541259936211926")

// unlockSteps[i] is the value of the first rune name of length i+1.
var unlockSteps = []uint128.Uint128{
	mustUint128FromString("0"),                                       // A
	mustUint128FromString("26"),                                      // AA
	mustUint128FromString("702"),                                     // AAA
	mustUint128FromString("18278"),                                   // AAAA
	mustUint128FromString("475254"),                                  // AAAAA
	mustUint128FromString("12356630"),                                // AAAAAA
	mustUint128FromString("321272406"),                               // AAAAAAA
	mustUint128FromString("8353082582"),                              // AAAAAAAA
	mustUint128FromString("217180147158"),                            // AAAAAAAAA
	mustUint128FromString("5646683826134"),                           // AAAAAAAAAA
	mustUint128FromString("146813779479510"),                         // AAAAAAAAAAA
	mustUint128FromString("3817158266467286"),                        // AAAAAAAAAAAA
	mustUint128FromString("99246114928149462"),                       // AAAAAAAAAAAAA
	mustUint128FromString("2580398988131886038"),                     // AAAAAAAAAAAAAA
	mustUint128FromString("67090373691429037014"),                    // AAAAAAAAAAAAAAA
	mustUint128FromString("1744349715977154962390"),                  // AAAAAAAAAAAAAAAA
	mustUint128FromString("45353092615406029022166"),                 // AAAAAAAAAAAAAAAAA
	mustUint128FromString("1179180408000556754576342"),               // AAAAAAAAAAAAAAAAAA
	mustUint128FromString("30658690608014475618984918"),              // AAAAAAAAAAAAAAAAAAA
	mustUint128FromString("797125955808376366093607894"),             // AAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("20725274851017785518433805270"),           // AAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("538857146126462423479278937046"),          // AAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("14010285799288023010461252363222"),        // AAAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("364267430781488598271992561443798"),       // AAAAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("9470953200318703555071806597538774"),      // AAAAAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("246244783208286292431866971536008150"),    // AAAAAAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("6402364363415443603228541259936211926"),   // AAAAAAAAAAAAAAAAAAAAAAAAAAA
	mustUint128FromString("166461473448801533683942072758341510102"), // AAAAAAAAAAAAAAAAAAAAAAAAAAAA
}

// IsReserved reports whether the rune is in the reserved range assigned to
// etchings without an explicit rune name.
func (r Rune) IsReserved() bool {
	return r.Uint128().Cmp(firstReservedRune) >= 0
}

// FirstRuneHeight returns the rune activation height for the network.
func FirstRuneHeight(network common.Network) uint64 {
	switch network {
	case common.NetworkMainnet:
		return common.HalvingInterval * 4
	case common.NetworkTestnet:
		return common.HalvingInterval * 12
	}
	panic("invalid network")
}

// MinimumRuneAtHeight returns the minimum rune value etchable at the given
// height. Rune names are gradually unlocked from 13 letters at activation down
// to one letter over the following halving interval, one length step every
// HalvingInterval/12 blocks, interpolated linearly within a step.
func MinimumRuneAtHeight(network common.Network, height uint64) Rune {
	offset := height + 1
	const interval = common.HalvingInterval / 12

	start := FirstRuneHeight(network)
	end := start + common.HalvingInterval

	if offset < start {
		return Rune(unlockSteps[12])
	}
	if offset >= end {
		return Rune(unlockSteps[0])
	}
	progress := offset - start
	length := 12 - progress/interval

	startRune := unlockSteps[length].Big()
	endRune := unlockSteps[length-1].Big() // length cannot be 0 because offset < end
	remainder := big.NewInt(int64(progress % interval))

	runeRange := new(big.Int).Sub(startRune, endRune)
	result := new(big.Int).Mul(runeRange, remainder)
	result = result.Div(result, big.NewInt(interval))
	result = result.Sub(startRune, result)
	return Rune(utils.Must(uint128.FromBig(result)))
}

// GetReservedRune returns the reserved rune assigned to an unnamed etching at
// the given block height and transaction index.
func GetReservedRune(blockHeight uint64, txIndex uint32) Rune {
	// firstReservedRune + ((blockHeight << 32) | txIndex)
	increment := uint128.From64(blockHeight).Lsh(32).Or64(uint64(txIndex))
	return Rune(firstReservedRune.Add(increment))
}
