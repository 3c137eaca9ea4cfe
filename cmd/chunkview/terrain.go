package main

import (
	"math"
)

// heightNoise is octave value noise over a hashed integer lattice. Samples
// are deterministic for a seed and normalised to [0,1].
type heightNoise struct {
	seed        int64
	octaves     int
	persistence float64
	lacunarity  float64
}

func smootherstep(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

func mix(a, b, t float64) float64 {
	return a + t*(b-a)
}

// lattice hashes a grid point with a SplitMix64 finaliser.
func lattice(x, z, seed int64) float64 {
	v := uint64(x)*0x9E3779B97F4A7C15 + uint64(z)*0x6C62272E07BB0142 + uint64(seed)
	v = (v ^ (v >> 30)) * 0xBF58476D1CE4E5B9
	v = (v ^ (v >> 27)) * 0x94D049BB133111EB
	v ^= v >> 31
	return float64(v&0xFFFFFFFF) / float64(0xFFFFFFFF)
}

func (n heightNoise) octave(x, z float64, seed int64) float64 {
	x0, z0 := math.Floor(x), math.Floor(z)
	fx, fz := smootherstep(x-x0), smootherstep(z-z0)
	ix, iz := int64(x0), int64(z0)
	top := mix(lattice(ix, iz, seed), lattice(ix+1, iz, seed), fx)
	bottom := mix(lattice(ix, iz+1, seed), lattice(ix+1, iz+1, seed), fx)
	return mix(top, bottom, fz)
}

// at samples the summed octaves at (x, z).
func (n heightNoise) at(x, z float64) float64 {
	amplitude, frequency := 1.0, 1.0
	sum, norm := 0.0, 0.0
	for i := 0; i < n.octaves; i++ {
		sum += n.octave(x*frequency, z*frequency, n.seed+int64(i*131)) * amplitude
		norm += amplitude
		amplitude *= n.persistence
		frequency *= n.lacunarity
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
