package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

var ErrDuplicateBlock = errors.New("registry: duplicate block")

// Registry holds block definitions indexed by id. It is filled during
// loading and read concurrently afterwards.
type Registry struct {
	mu        sync.RWMutex
	byID      []*BlockDefinition
	byName    map[string]*BlockDefinition
	colorMaps map[string]ColorMap
}

// New creates a registry holding only air at id 0.
func New() *Registry {
	r := &Registry{
		byName:    make(map[string]*BlockDefinition),
		colorMaps: make(map[string]ColorMap),
	}
	air := &BlockDefinition{ID: world.BlockAir, Name: "air", DrawType: DrawAir}
	r.byID = []*BlockDefinition{air}
	r.byName[air.Name] = air
	return r
}

// Register adds a block definition.
func (r *Registry) Register(def *BlockDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("registry: block %d has no name", def.ID)
	}
	if def.LightAbsorption > 32 {
		return fmt.Errorf("registry: block %s light absorption %d above 32", def.Name, def.LightAbsorption)
	}
	if def.LiquidLevel > 7 {
		return fmt.Errorf("registry: block %s liquid level %d above 7", def.Name, def.LiquidLevel)
	}
	if def.DrawType == DrawDecal && def.Decal == nil {
		return fmt.Errorf("registry: decal block %s has no decal info", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[def.Name]; ok {
		return fmt.Errorf("%w: name %s", ErrDuplicateBlock, def.Name)
	}
	id := int(def.ID)
	if id < len(r.byID) && r.byID[id] != nil {
		return fmt.Errorf("%w: id %d", ErrDuplicateBlock, def.ID)
	}
	for len(r.byID) <= id {
		r.byID = append(r.byID, nil)
	}
	r.byID[id] = def
	r.byName[def.Name] = def
	return nil
}

// Get returns the definition for id; unknown ids resolve to air.
func (r *Registry) Get(id world.BlockID) *BlockDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) < len(r.byID) {
		if def := r.byID[id]; def != nil {
			return def
		}
	}
	return r.byID[world.BlockAir]
}

// ByName looks a block up by name.
func (r *Registry) ByName(name string) (*BlockDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// Len returns one past the highest registered id.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Table returns a dense id-indexed copy with air filling the gaps, for
// lock-free lookups on the meshing goroutine.
func (r *Registry) Table() []*BlockDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*BlockDefinition, len(r.byID))
	for i, def := range r.byID {
		if def == nil {
			def = r.byID[world.BlockAir]
		}
		out[i] = def
	}
	return out
}

// RegisterColorMap adds a named climate colour map.
func (r *Registry) RegisterColorMap(name string, cm ColorMap) {
	r.mu.Lock()
	r.colorMaps[name] = cm
	r.mu.Unlock()
}

// ColorMap returns a named colour map.
func (r *Registry) ColorMap(name string) (ColorMap, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cm, ok := r.colorMaps[name]
	return cm, ok
}

// LoadShapes resolves the Shape, Lod2Shape and Lod0Shape model names of
// every JSON block into element lists. Blocks whose shape contains a full
// opaque cube are left as declared; others are forced non-opaque.
func (r *Registry) LoadShapes(loader *blockmodel.Loader, logger *slog.Logger) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, def := range r.byID {
		if def == nil || def.DrawType != DrawJSON {
			continue
		}
		load := func(name string) []blockmodel.Element {
			if name == "" {
				return nil
			}
			model, err := loader.LoadModel(name)
			if err != nil {
				errs = append(errs, fmt.Errorf("block %s: %w", def.Name, err))
				return nil
			}
			return model.Elements
		}
		if def.Elements == nil {
			def.Elements = load(def.Shape)
		}
		if def.Lod2Elements == nil {
			def.Lod2Elements = load(def.Lod2Shape)
		}
		if def.Lod0Elements == nil {
			def.Lod0Elements = load(def.Lod0Shape)
		}

		full := false
		for _, e := range def.Elements {
			if e.IsFullCube() {
				full = true
				break
			}
		}
		if !full && def.Opaque {
			logger.Debug("json block has no full cube element, marking non-opaque", "block", def.Name)
			def.Opaque = false
		}
	}
	return errors.Join(errs...)
}

// TextureNames lists every texture referenced by registered blocks, sorted.
func (r *Registry) TextureNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	add := func(name string) {
		if name != "" {
			seen[name] = struct{}{}
		}
	}
	addElements := func(els []blockmodel.Element) {
		for _, e := range els {
			for _, f := range e.Faces {
				add(f.Texture)
			}
		}
	}
	for _, def := range r.byID {
		if def == nil {
			continue
		}
		for _, t := range def.Textures {
			add(t)
		}
		for _, v := range def.Variants {
			for _, t := range v {
				add(t)
			}
		}
		if def.Decal != nil {
			add(def.Decal.Texture)
		}
		addElements(def.Elements)
		addElements(def.Lod2Elements)
		addElements(def.Lod0Elements)
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
