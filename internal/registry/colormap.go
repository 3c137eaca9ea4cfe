package registry

import "voxelclient/internal/world"

// ColorMap tints blocks by climate. Colours are 0xRRGGBB.
type ColorMap struct {
	Hot  uint32 // warm and wet
	Cold uint32 // cold and wet
	Dry  uint32 // any temperature, no rain
}

// Tint returns the packed 0xRRGGBB colour for a climate sample.
func (c ColorMap) Tint(s world.ClimateSample) uint32 {
	t := clamp01(s.Temperature)
	r := clamp01(s.Rainfall)
	wet := lerpRGB(c.Cold, c.Hot, t)
	return lerpRGB(c.Dry, wet, r)
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}

func lerpRGB(a, b uint32, t float32) uint32 {
	var out uint32
	for shift := 0; shift <= 16; shift += 8 {
		ca := float32((a >> shift) & 0xFF)
		cb := float32((b >> shift) & 0xFF)
		out |= uint32(ca+(cb-ca)*t+0.5) << shift
	}
	return out
}
