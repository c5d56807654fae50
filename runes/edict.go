package runes

import (
	"github.com/gaze-network/uint128"
)

// Edict is a directive transferring rune balance to a transaction output.
// An Output equal to the transaction's output count means "distribute across
// all non-OP_RETURN outputs". A zero Amount means "all remaining balance".
type Edict struct {
	Id     RuneId
	Amount uint128.Uint128
	Output uint32
}
