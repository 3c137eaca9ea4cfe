package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// ChunkBits is log2 of the chunk edge length.
	ChunkBits   = 5
	ChunkSize   = 1 << ChunkBits
	ChunkMask   = ChunkSize - 1
	ChunkVolume = ChunkSize * ChunkSize * ChunkSize
)

// BlockID identifies a block type in the registry. Zero is air.
type BlockID uint32

const BlockAir BlockID = 0

// BlockFace identifies a face of a block
type BlockFace uint8

const (
	FaceNorth BlockFace = iota // -Z
	FaceEast                   // +X
	FaceSouth                  // +Z
	FaceWest                   // -X
	FaceUp                     // +Y
	FaceDown                   // -Y

	NumFaces = 6
)

var faceNames = [NumFaces]string{"north", "east", "south", "west", "up", "down"}

var faceNormals = [NumFaces][3]int{
	{0, 0, -1},
	{1, 0, 0},
	{0, 0, 1},
	{-1, 0, 0},
	{0, 1, 0},
	{0, -1, 0},
}

func (f BlockFace) String() string {
	if int(f) < NumFaces {
		return faceNames[f]
	}
	return fmt.Sprintf("face(%d)", uint8(f))
}

// Normal returns the integer offset towards the neighbour behind the face.
func (f BlockFace) Normal() (dx, dy, dz int) {
	n := faceNormals[f]
	return n[0], n[1], n[2]
}

// Opposite returns the face pointing the other way.
func (f BlockFace) Opposite() BlockFace {
	switch f {
	case FaceNorth:
		return FaceSouth
	case FaceSouth:
		return FaceNorth
	case FaceEast:
		return FaceWest
	case FaceWest:
		return FaceEast
	case FaceUp:
		return FaceDown
	default:
		return FaceUp
	}
}

// Flag is the bit of the face inside a six-bit face mask.
func (f BlockFace) Flag() uint8 { return 1 << f }

// IsHorizontal reports whether the face is one of the four sides.
func (f BlockFace) IsHorizontal() bool { return f < FaceUp }

// ParseFace maps a block model face name to a BlockFace.
func ParseFace(name string) (BlockFace, bool) {
	for i, n := range faceNames {
		if n == name {
			return BlockFace(i), true
		}
	}
	return 0, false
}

// PackedLight stores sun light in the low 5 bits and block light in the next 5.
type PackedLight uint16

const (
	MaxLight     = 31
	FullSunLight = PackedLight(MaxLight)
)

// NewPackedLight packs sun and block light levels, clamped to MaxLight.
func NewPackedLight(sun, block uint8) PackedLight {
	return PackedLight(min(sun, MaxLight)) | PackedLight(min(block, MaxLight))<<5
}

func (l PackedLight) Sun() uint8   { return uint8(l & MaxLight) }
func (l PackedLight) Block() uint8 { return uint8((l >> 5) & MaxLight) }

// Normalized returns both channels in [0,1].
func (l PackedLight) Normalized() (sun, block float32) {
	return float32(l.Sun()) / MaxLight, float32(l.Block()) / MaxLight
}

// ClimateSample drives colour map tinting.
type ClimateSample struct {
	Temperature float32 // 0 cold .. 1 hot
	Rainfall    float32 // 0 dry .. 1 wet
}

// ChunkCoord addresses a chunk inside a dimension.
type ChunkCoord struct {
	X, Y, Z   int
	Dimension int
}

// ChunkCoordOf returns the coordinate of the chunk holding the world block.
func ChunkCoordOf(x, y, z, dim int) ChunkCoord {
	return ChunkCoord{X: x >> ChunkBits, Y: y >> ChunkBits, Z: z >> ChunkBits, Dimension: dim}
}

// Origin returns the world block position of the chunk's minimum corner.
func (c ChunkCoord) Origin() (x, y, z int) {
	return c.X * ChunkSize, c.Y * ChunkSize, c.Z * ChunkSize
}

// OriginVec returns Origin as a float vector.
func (c ChunkCoord) OriginVec() mgl32.Vec3 {
	x, y, z := c.Origin()
	return mgl32.Vec3{float32(x), float32(y), float32(z)}
}

// Center returns the world position of the chunk centre.
func (c ChunkCoord) Center() mgl32.Vec3 {
	return c.OriginVec().Add(mgl32.Vec3{ChunkSize / 2, ChunkSize / 2, ChunkSize / 2})
}

// Offset returns the coordinate shifted by whole chunks.
func (c ChunkCoord) Offset(dx, dy, dz int) ChunkCoord {
	return ChunkCoord{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz, Dimension: c.Dimension}
}

// DistanceSq is the squared chunk-centre distance to a world position.
func (c ChunkCoord) DistanceSq(pos mgl32.Vec3) float32 {
	d := c.Center().Sub(pos)
	return d.Dot(d)
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d,%d@%d)", c.X, c.Y, c.Z, c.Dimension)
}

// LocalIndex flattens chunk-local coordinates, x fastest.
func LocalIndex(x, y, z int) int {
	return (y*ChunkSize+z)*ChunkSize + x
}
