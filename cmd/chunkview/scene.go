package main

import (
	"fmt"
	"image/color"
	"io/fs"
	"log/slog"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

const (
	blockStone world.BlockID = iota + 1
	blockDirt
	blockGrass
	blockSand
	blockWater
	blockGlass
	blockFlower
	blockTorch
	blockPainting
	blockLeaves
)

const (
	seaLevel   = 44
	baseHeight = 36
	hillHeight = 28
	sceneSeed  = 1337
)

var tileColors = map[string]color.RGBA{
	"stone":       {125, 125, 125, 255},
	"dirt":        {134, 96, 67, 255},
	"grass_top":   {200, 200, 200, 255},
	"grass_side":  {110, 150, 70, 255},
	"sand":        {219, 207, 163, 255},
	"water_still": {50, 90, 200, 180},
	"water_flow":  {60, 100, 210, 180},
	"glass":       {200, 230, 240, 90},
	"flower":      {220, 40, 60, 255},
	"torch":       {250, 200, 80, 255},
	"painting":    {160, 80, 40, 255},
	"leaves":      {200, 200, 200, 200},
}

func allFaces(tex string) map[string]blockmodel.Face {
	faces := make(map[string]blockmodel.Face, world.NumFaces)
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		faces[f.String()] = blockmodel.Face{Texture: tex}
	}
	return faces
}

// pillar is a centred box of the given width and height in model units.
func pillar(width, height float32, tex string) blockmodel.Element {
	lo := (16 - width) / 2
	return blockmodel.Element{
		From:  [3]float32{lo, 0, lo},
		To:    [3]float32{lo + width, height, lo + width},
		Faces: allFaces(tex),
	}
}

// demoRegistry registers the block set of the generated scene.
func demoRegistry() (*registry.Registry, error) {
	reg := registry.New()
	reg.RegisterColorMap("grass", registry.ColorMap{Hot: 0x5fa83a, Cold: 0x80b497, Dry: 0xbfb755})
	reg.RegisterColorMap("foliage", registry.ColorMap{Hot: 0x3e8f1d, Cold: 0x60a17b, Dry: 0xaea42a})

	water := registry.AllFaces("water_flow")
	water[world.FaceUp] = "water_still"
	defs := []*registry.BlockDefinition{
		{ID: blockStone, Name: "stone", DrawType: registry.DrawCube, Pass: registry.PassOpaque,
			Textures: registry.AllFaces("stone"), Opaque: true, LightAbsorption: 32, RandomRotation: true},
		{ID: blockDirt, Name: "dirt", DrawType: registry.DrawCube, Pass: registry.PassOpaque,
			Textures: registry.AllFaces("dirt"), Opaque: true, LightAbsorption: 32},
		{ID: blockGrass, Name: "grass", DrawType: registry.DrawCube, Pass: registry.PassTopSoil,
			Textures: registry.TopSideBottom("grass_top", "grass_side", "dirt"), Opaque: true, LightAbsorption: 32,
			ClimateColorMap: "grass", TintFaces: world.FaceUp.Flag()},
		{ID: blockSand, Name: "sand", DrawType: registry.DrawCube, Pass: registry.PassOpaque,
			Textures: registry.AllFaces("sand"), Opaque: true, LightAbsorption: 32},
		{ID: blockWater, Name: "water", DrawType: registry.DrawLiquid, Pass: registry.PassLiquid,
			Textures: water, LiquidCode: "water", LiquidLevel: 7, LightAbsorption: 2, Wind: registry.WindWater},
		{ID: blockGlass, Name: "glass", DrawType: registry.DrawCube, Pass: registry.PassTransparent,
			Textures: registry.AllFaces("glass")},
		{ID: blockFlower, Name: "flower", DrawType: registry.DrawJSON, Pass: registry.PassOpaqueNoCull,
			Elements: []blockmodel.Element{pillar(4, 10, "flower")}, Wind: registry.WindGrass},
		{ID: blockTorch, Name: "torch", DrawType: registry.DrawJSON, Pass: registry.PassOpaqueNoCull,
			Elements: []blockmodel.Element{pillar(2, 10, "torch")}, Glow: 14, AlwaysFullDetail: true},
		{ID: blockPainting, Name: "painting", DrawType: registry.DrawDecal, Pass: registry.PassOpaqueNoCull,
			Decal: &registry.DecalInfo{Texture: "painting", Facing: world.FaceSouth, Width: 2, Height: 1, Inset: 0.05, Overhang: 0.1}},
		{ID: blockLeaves, Name: "leaves", DrawType: registry.DrawCube, Pass: registry.PassBlendNoCull,
			Textures: registry.AllFaces("leaves"), LightAbsorption: 4, ClimateColorMap: "foliage", Wind: registry.WindLeaves},
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// demoAtlas packs the scene textures. Tiles found under assets replace the
// generated solid colours.
func demoAtlas(assets fs.FS, logger *slog.Logger) (*atlas.Atlas, error) {
	a, err := atlas.New(16, 256, 4, logger)
	if err != nil {
		return nil, err
	}
	if assets != nil {
		n, err := a.LoadDir(assets, "textures")
		if err != nil {
			return nil, fmt.Errorf("load textures: %w", err)
		}
		logger.Info("textures loaded", "count", n)
	}
	for name, c := range tileColors {
		if _, ok := a.Lookup(name); ok {
			continue
		}
		if _, err := a.Register(name, atlas.SolidTile(16, c)); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// demoClimate drifts from cold in the west to hot in the east.
func demoClimate(x, y, z int) world.ClimateSample {
	t := float32(x+512) / 1024
	return world.ClimateSample{Temperature: min(max(t, 0), 1), Rainfall: 0.7}
}

// terrainSource fills chunks with rolling hills, a sea and some props, as a
// network decoder would fill them from chunk packets.
type terrainSource struct {
	noise heightNoise
}

func newTerrainSource() *terrainSource {
	return &terrainSource{noise: heightNoise{seed: sceneSeed, octaves: 4, persistence: 0.5, lacunarity: 2}}
}

func (s *terrainSource) height(x, z int) int {
	return baseHeight + int(s.noise.at(float64(x)/96, float64(z)/96)*hillHeight)
}

func (s *terrainSource) Populate(c *world.Chunk) {
	ox, oy, oz := c.Coord.Origin()
	for lz := 0; lz < world.ChunkSize; lz++ {
		for lx := 0; lx < world.ChunkSize; lx++ {
			x, z := ox+lx, oz+lz
			h := s.height(x, z)
			prop := propHash(x, z)
			for ly := 0; ly < world.ChunkSize; ly++ {
				y := oy + ly
				id := s.blockAt(y, h, prop)
				if id != world.BlockAir {
					c.SetBlock(lx, ly, lz, id)
				}
				switch {
				case y > h && y > seaLevel:
					c.SetLight(lx, ly, lz, world.FullSunLight)
				case y > h:
					c.SetLight(lx, ly, lz, world.NewPackedLight(uint8(max(0, world.MaxLight-2*(seaLevel-y+1))), 0))
				}
				if id == blockTorch {
					c.SetLight(lx, ly, lz, world.NewPackedLight(world.MaxLight, 14))
				}
			}
		}
	}
}

func (s *terrainSource) blockAt(y, h int, prop uint32) world.BlockID {
	switch {
	case y < h-3:
		return blockStone
	case y < h:
		if h <= seaLevel+1 {
			return blockSand
		}
		return blockDirt
	case y == h:
		if h <= seaLevel+1 {
			return blockSand
		}
		return blockGrass
	case y <= seaLevel:
		return blockWater
	case y == h+1:
		switch prop % 97 {
		case 0, 1, 2:
			return blockFlower
		case 3:
			return blockTorch
		case 4:
			return blockGlass
		case 5:
			return blockPainting
		}
	case y == h+2 && prop%97 == 4:
		return blockLeaves
	}
	return world.BlockAir
}

// propHash picks the prop of a column.
func propHash(x, z int) uint32 {
	return uint32(lattice(int64(x), int64(z), sceneSeed+7) * 0xFFFFFFFF)
}
