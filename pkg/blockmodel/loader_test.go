package blockmodel

import (
	"testing"
	"testing/fstest"
)

func testAssets() fstest.MapFS {
	return fstest.MapFS{
		"models/block/test_cube.json": {Data: []byte(`{
			"textures": { "all": "block/stone" },
			"elements": [ { "from": [0,0,0], "to": [16,16,16], "faces": { "down": { "texture": "#all" } } } ]
		}`)},
		"models/block/test_child.json": {Data: []byte(`{
			"parent": "block/test_cube",
			"textures": { "particle": "block/dirt" }
		}`)},
		"models/block/test_texture_resolve.json": {Data: []byte(`{
			"textures": { "primary": "block/diamond_block", "secondary": "#primary" },
			"elements": [ { "from": [0,0,0], "to": [16,16,16], "faces": { "north": { "texture": "#secondary" } } } ]
		}`)},
		"models/block/parent.json": {Data: []byte(`{
			"textures": { "dummy": "ignore" },
			"elements": [ { "from": [0,0,0], "to": [16,16,16], "faces": { "up": { "texture": "#all" } } } ]
		}`)},
		"models/block/child1.json": {Data: []byte(`{ "parent": "block/parent", "textures": { "all": "block/skin1" } }`)},
		"models/block/child2.json": {Data: []byte(`{ "parent": "block/parent", "textures": { "all": "block/skin2" } }`)},
		"models/block/loop.json":   {Data: []byte(`{ "parent": "block/loop" }`)},
		"blockstates/flower.json":  {Data: []byte(`{ "variants": { "normal": { "model": "flower", "y": 90 } } }`)},
	}
}

func TestLoadSimpleModel(t *testing.T) {
	loader := NewLoader(testAssets())
	model, err := loader.LoadModel("block/test_cube")
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}

	if len(model.Elements) != 1 {
		t.Errorf("Expected 1 element, got %d", len(model.Elements))
	}

	if model.Textures["all"] != "block/stone" {
		t.Errorf("Expected texture 'all' to be 'block/stone', got '%s'", model.Textures["all"])
	}
}

func TestLoadChildModel(t *testing.T) {
	loader := NewLoader(testAssets())
	model, err := loader.LoadModel("test_child")
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}

	if len(model.Elements) != 1 {
		t.Errorf("Expected 1 element from parent, got %d", len(model.Elements))
	}
	if model.Textures["all"] != "block/stone" {
		t.Errorf("Expected texture 'all' to be inherited as 'block/stone', got '%s'", model.Textures["all"])
	}
	if model.Textures["particle"] != "block/dirt" {
		t.Errorf("Expected texture 'particle' to be 'block/dirt', got '%s'", model.Textures["particle"])
	}
}

func TestTextureResolve(t *testing.T) {
	loader := NewLoader(testAssets())
	model, err := loader.LoadModel("block/test_texture_resolve")
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}

	face := model.Elements[0].Faces["north"]
	if face.Texture != "block/diamond_block" {
		t.Errorf("Expected texture to be resolved to 'block/diamond_block', got '%s'", face.Texture)
	}
}

func TestCache(t *testing.T) {
	loader := NewLoader(testAssets())
	model1, err := loader.LoadModel("block/test_cube")
	if err != nil {
		t.Fatalf("Failed to load model first time: %v", err)
	}
	model2, err := loader.LoadModel("block/test_cube")
	if err != nil {
		t.Fatalf("Failed to load model second time: %v", err)
	}
	if model1 != model2 {
		t.Errorf("Expected the same model instance to be returned from cache")
	}
}

func TestSharedParentNotMutated(t *testing.T) {
	loader := NewLoader(testAssets())

	c1, err := loader.LoadModel("block/child1")
	if err != nil {
		t.Fatalf("Failed to load child1: %v", err)
	}
	if got := c1.Elements[0].Faces["up"].Texture; got != "block/skin1" {
		t.Errorf("Child1 should have skin1, got %s", got)
	}

	c2, err := loader.LoadModel("block/child2")
	if err != nil {
		t.Fatalf("Failed to load child2: %v", err)
	}
	if got := c2.Elements[0].Faces["up"].Texture; got != "block/skin2" {
		t.Errorf("Child2 should have skin2, got %s", got)
	}

	parent, _ := loader.LoadModel("block/parent")
	if got := parent.Elements[0].Faces["up"].Texture; got != "#all" {
		t.Errorf("Parent model in cache was mutated! Got %s", got)
	}
}

func TestParentCycleFails(t *testing.T) {
	loader := NewLoader(testAssets())
	if _, err := loader.LoadModel("block/loop"); err == nil {
		t.Fatal("expected an error for a self-referencing parent")
	}
}

func TestLoadBlockStateSingleVariant(t *testing.T) {
	loader := NewLoader(testAssets())
	bs, err := loader.LoadBlockState("flower")
	if err != nil {
		t.Fatal(err)
	}
	v := bs.Variants["normal"]
	if len(v) != 1 || v[0].Model != "flower" || v[0].Y != 90 {
		t.Fatalf("variants = %+v", v)
	}
}
