package meshing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// PositionHash is a deterministic hash of a world position, used to pick
// texture, rotation and shape variants without any RNG state.
func PositionHash(x, y, z int) uint64 {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:], uint32(int32(x)))
	binary.LittleEndian.PutUint32(b[4:], uint32(int32(y)))
	binary.LittleEndian.PutUint32(b[8:], uint32(int32(z)))
	return xxhash.Sum64(b[:])
}

// VariantIndex picks one of n variants.
func VariantIndex(hash uint64, n int) int {
	if n <= 1 {
		return 0
	}
	return int(hash % uint64(n))
}

// QuarterTurns picks a rotation of 0..3 quarter turns, independent of the
// variant pick.
func QuarterTurns(hash uint64) int {
	return int((hash >> 8) % 4)
}
