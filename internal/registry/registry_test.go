package registry

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	stone := &BlockDefinition{ID: 1, Name: "stone", DrawType: DrawCube, Opaque: true, Textures: AllFaces("block/stone")}
	if err := r.Register(stone); err != nil {
		t.Fatal(err)
	}
	if r.Get(1) != stone {
		t.Fatal("Get(1) did not return stone")
	}
	if def, ok := r.ByName("stone"); !ok || def != stone {
		t.Fatal("ByName failed")
	}
	if !r.Get(99).IsAir() {
		t.Fatal("unknown ids should resolve to air")
	}

	err := r.Register(&BlockDefinition{ID: 1, Name: "other"})
	if !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("duplicate id accepted: %v", err)
	}
	err = r.Register(&BlockDefinition{ID: 2, Name: "stone"})
	if !errors.Is(err, ErrDuplicateBlock) {
		t.Fatalf("duplicate name accepted: %v", err)
	}
}

func TestRegisterValidates(t *testing.T) {
	r := New()
	cases := []*BlockDefinition{
		{ID: 1},
		{ID: 2, Name: "a", LightAbsorption: 40},
		{ID: 3, Name: "b", LiquidLevel: 8},
		{ID: 4, Name: "c", DrawType: DrawDecal},
	}
	for _, def := range cases {
		if err := r.Register(def); err == nil {
			t.Errorf("definition %+v should be rejected", def)
		}
	}
}

func TestTableFillsGaps(t *testing.T) {
	r := New()
	_ = r.Register(&BlockDefinition{ID: 3, Name: "glass", DrawType: DrawCube})
	table := r.Table()
	if len(table) != 4 {
		t.Fatalf("len = %d", len(table))
	}
	if !table[1].IsAir() || table[3].Name != "glass" {
		t.Fatal("gaps should be air")
	}
}

func TestHidesFace(t *testing.T) {
	air := &BlockDefinition{Name: "air"}
	stone := &BlockDefinition{ID: 1, Name: "stone", DrawType: DrawCube, Opaque: true}
	glass := &BlockDefinition{ID: 2, Name: "glass", DrawType: DrawCube}
	water := &BlockDefinition{ID: 3, Name: "water", DrawType: DrawLiquid, LiquidCode: "water"}
	water2 := &BlockDefinition{ID: 4, Name: "water-low", DrawType: DrawLiquid, LiquidCode: "water"}

	tests := []struct {
		self, nb *BlockDefinition
		hidden   bool
	}{
		{stone, stone, true},
		{stone, air, false},
		{stone, glass, false},
		{glass, stone, true},
		{glass, glass, true},
		{water, water2, true},
		{water, glass, false},
		{stone, water, false},
	}
	for _, tt := range tests {
		if got := HidesFace(tt.self, tt.nb); got != tt.hidden {
			t.Errorf("HidesFace(%s, %s) = %v, want %v", tt.self.Name, tt.nb.Name, got, tt.hidden)
		}
	}
}

func TestColorMapTint(t *testing.T) {
	cm := ColorMap{Hot: 0x00FF00, Cold: 0x0000FF, Dry: 0xFF0000}
	if got := cm.Tint(world.ClimateSample{Temperature: 1, Rainfall: 1}); got != 0x00FF00 {
		t.Errorf("hot wet = %06x", got)
	}
	if got := cm.Tint(world.ClimateSample{Temperature: 0, Rainfall: 1}); got != 0x0000FF {
		t.Errorf("cold wet = %06x", got)
	}
	if got := cm.Tint(world.ClimateSample{Temperature: 0.3, Rainfall: 0}); got != 0xFF0000 {
		t.Errorf("dry = %06x", got)
	}
}

func TestLoadShapesAndTextureNames(t *testing.T) {
	fsys := fstest.MapFS{
		"models/block/flower.json": {Data: []byte(`{
			"textures": { "cross": "block/flower" },
			"elements": [ { "from": [4,0,4], "to": [12,12,12], "faces": { "north": { "texture": "#cross" } } } ]
		}`)},
	}
	r := New()
	flower := &BlockDefinition{ID: 5, Name: "flower", DrawType: DrawJSON, Shape: "flower", Opaque: true}
	if err := r.Register(flower); err != nil {
		t.Fatal(err)
	}
	_ = r.Register(&BlockDefinition{ID: 6, Name: "dirt", DrawType: DrawCube, Textures: AllFaces("block/dirt")})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := r.LoadShapes(blockmodel.NewLoader(fsys), logger); err != nil {
		t.Fatal(err)
	}
	if len(flower.Elements) != 1 {
		t.Fatalf("elements = %d", len(flower.Elements))
	}
	if flower.Opaque {
		t.Fatal("partial shape should not stay opaque")
	}
	names := r.TextureNames()
	if len(names) != 2 || names[0] != "block/dirt" || names[1] != "block/flower" {
		t.Fatalf("TextureNames = %v", names)
	}

	bad := New()
	_ = bad.Register(&BlockDefinition{ID: 1, Name: "x", DrawType: DrawJSON, Shape: "missing"})
	if err := bad.LoadShapes(blockmodel.NewLoader(fsys), logger); err == nil {
		t.Fatal("missing model should fail")
	}
}
