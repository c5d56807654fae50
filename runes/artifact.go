package runes

// Artifact is the result of deciphering a transaction: either a valid
// *Runestone or a *Cenotaph. The interface is sealed; no other types
// implement it.
type Artifact interface {
	artifact()

	// MintRuneId returns the rune id to mint, if any. Cenotaph mints are
	// still counted against the cap, with the minted amount burned.
	MintRuneId() *RuneId
}

// Cenotaph is a malformed runestone. Runes transferred in the transaction are
// burned, a rune etched in it is unmintable, and a mint counts against the cap
// with the minted amount burned.
type Cenotaph struct {
	// Bitmask of flaws that downgraded the runestone. Always non-zero.
	Flaws Flaws
	// Rune name of the etching, if the runestone carried one. The name is
	// still allocated so it cannot be claimed again.
	Etching *Rune
	// Valid mint directive, if the runestone carried one.
	Mint *RuneId
}

func (*Cenotaph) artifact() {}

func (c *Cenotaph) MintRuneId() *RuneId {
	return c.Mint
}
