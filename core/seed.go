package core

import (
	"encoding/binary"
	"math/rand/v2"

	"lukechampine.com/blake3"

	"github.com/signalsfoundry/stellar-empires/model"
)

// DeriveSeed derives the per-turn seed from the game seed. Every random
// draw of a turn descends from this value.
func DeriveSeed(gameSeed uint64, turn int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], gameSeed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(turn))
	sum := blake3.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// SiteSeed derives an independent seed for one combat site so that sites
// can be resolved in any order, or in parallel, with identical results.
func SiteSeed(turnSeed uint64, site model.LocationKey) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[:8], turnSeed)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(site.X))
	binary.LittleEndian.PutUint64(buf[16:], uint64(site.Y))
	sum := blake3.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// NewRand returns a PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
