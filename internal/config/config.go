package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Settings holds the runtime toggles of the chunk pipeline. ViewDistance is
// read every frame through Get; the other values when a pool, tesselator,
// scheduler or shader is created.
type Settings struct {
	ViewDistance             int  `json:"view_distance"`               // in chunks
	VerticesPerUploadDivisor int  `json:"vertices_per_upload_divisor"` // larger means smaller meshing ticks
	UploadBytesPerFrame      int  `json:"upload_bytes_per_frame"`
	LastQueueQuota           int  `json:"last_queue_quota"`
	QueueCapacity            int  `json:"queue_capacity"`
	UseUniformBuffer         bool `json:"use_uniform_buffer"` // uniform block instead of loose uniforms

	LODBias      float32 `json:"lod_bias"`
	Lod2Distance float32 `json:"lod2_distance"` // in blocks, scaled by LODBias

	AOStrength            float32 `json:"ao_strength"`
	LightAbsorptionScale  float32 `json:"light_absorption_scale"`
	ShadowsEnabled        bool    `json:"shadows_enabled"`
	PoolMaxVertices       int     `json:"pool_max_vertices"`
	PoolMaxIndices        int     `json:"pool_max_indices"`
	PoolMaxFragments      int     `json:"pool_max_fragments"`
	PoolOriginSpan        float32 `json:"pool_origin_span"`
	DefragmentAbove       float32 `json:"defragment_above"` // fragmentation ratio
	MeshCacheEntries      int     `json:"mesh_cache_entries"`
	MeshCacheWorkers      int     `json:"mesh_cache_workers"`
	MeshingTickIntervalMS int     `json:"meshing_tick_interval_ms"`
}

// bounds of ViewDistance in chunks
const (
	MinViewDistance = 1
	MaxViewDistance = 64
)

// DefaultSettings returns Settings with the values the client ships with.
func DefaultSettings() *Settings {
	return &Settings{
		ViewDistance:             12,
		VerticesPerUploadDivisor: 8,
		UploadBytesPerFrame:      4 * 1024 * 1024,
		LastQueueQuota:           5,
		QueueCapacity:            4096,
		LODBias:                  1,
		Lod2Distance:             160,
		AOStrength:               0.67,
		LightAbsorptionScale:     0.25,
		ShadowsEnabled:           true,
		PoolMaxVertices:          1 << 20,
		PoolMaxIndices:           3 << 19,
		PoolMaxFragments:         4096,
		PoolOriginSpan:           2048,
		DefragmentAbove:          0.3,
		MeshCacheEntries:         256,
		MeshCacheWorkers:         2,
		MeshingTickIntervalMS:    5,
	}
}

// Validate reports the first setting that cannot drive the pipeline.
func (s *Settings) Validate() error {
	var errs []error
	if s.ViewDistance < MinViewDistance || s.ViewDistance > MaxViewDistance {
		errs = append(errs, fmt.Errorf("view_distance must be within [%d,%d], got %d", MinViewDistance, MaxViewDistance, s.ViewDistance))
	}
	if s.VerticesPerUploadDivisor < 1 {
		errs = append(errs, fmt.Errorf("vertices_per_upload_divisor must be positive, got %d", s.VerticesPerUploadDivisor))
	}
	if s.UploadBytesPerFrame < 1 {
		errs = append(errs, fmt.Errorf("upload_bytes_per_frame must be positive, got %d", s.UploadBytesPerFrame))
	}
	if s.AOStrength < 0 || s.AOStrength > 1 {
		errs = append(errs, fmt.Errorf("ao_strength must be within [0,1], got %g", s.AOStrength))
	}
	if s.LightAbsorptionScale < 0 || s.LightAbsorptionScale > 1 {
		errs = append(errs, fmt.Errorf("light_absorption_scale must be within [0,1], got %g", s.LightAbsorptionScale))
	}
	if s.PoolMaxVertices < 1 || s.PoolMaxIndices < 3 || s.PoolMaxFragments < 1 {
		errs = append(errs, errors.New("pool limits must be positive"))
	}
	if s.LODBias <= 0 {
		errs = append(errs, fmt.Errorf("lod_bias must be positive, got %g", s.LODBias))
	}
	return errors.Join(errs...)
}

// VertexBudget is the per-tick vertex ceiling of the meshing scheduler.
// It grows with the square of the view distance.
func (s *Settings) VertexBudget() int {
	budget := s.ViewDistance * s.ViewDistance * 4096 / max(s.VerticesPerUploadDivisor, 1)
	return max(budget, 1)
}

// EffectiveLod2Distance applies the LOD bias.
func (s *Settings) EffectiveLod2Distance() float32 {
	return s.Lod2Distance * s.LODBias
}

// Load reads Settings from a JSON file. Missing fields keep their defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read settings file: %w", err)
	}
	s := DefaultSettings()
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("could not unmarshal settings json: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}

// Merge copies file-loaded values into s for every field whose flag was not
// set explicitly on the command line.
func Merge(s, fromFile *Settings, explicitFlags map[string]bool) {
	if !explicitFlags["view-distance"] {
		s.ViewDistance = fromFile.ViewDistance
	}
	if !explicitFlags["vertex-divisor"] {
		s.VerticesPerUploadDivisor = fromFile.VerticesPerUploadDivisor
	}
	if !explicitFlags["lod-bias"] {
		s.LODBias = fromFile.LODBias
	}
	if !explicitFlags["ubo"] {
		s.UseUniformBuffer = fromFile.UseUniformBuffer
	}
	if !explicitFlags["shadows"] {
		s.ShadowsEnabled = fromFile.ShadowsEnabled
	}
	s.UploadBytesPerFrame = fromFile.UploadBytesPerFrame
	s.LastQueueQuota = fromFile.LastQueueQuota
	s.QueueCapacity = fromFile.QueueCapacity
	s.Lod2Distance = fromFile.Lod2Distance
	s.AOStrength = fromFile.AOStrength
	s.LightAbsorptionScale = fromFile.LightAbsorptionScale
	s.PoolMaxVertices = fromFile.PoolMaxVertices
	s.PoolMaxIndices = fromFile.PoolMaxIndices
	s.PoolMaxFragments = fromFile.PoolMaxFragments
	s.PoolOriginSpan = fromFile.PoolOriginSpan
	s.DefragmentAbove = fromFile.DefragmentAbove
	s.MeshCacheEntries = fromFile.MeshCacheEntries
	s.MeshCacheWorkers = fromFile.MeshCacheWorkers
	s.MeshingTickIntervalMS = fromFile.MeshingTickIntervalMS
}

var (
	globalMu       sync.RWMutex
	globalSettings = DefaultSettings()
)

// Get returns a copy of the process-wide settings.
func Get() Settings {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return *globalSettings
}

// Update replaces the process-wide settings after validating them.
func Update(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	*globalSettings = s
	return nil
}

// AdjustViewDistance steps the process-wide view distance by delta chunks
// within [MinViewDistance, MaxViewDistance] and returns the new value.
func AdjustViewDistance(delta int) int {
	globalMu.Lock()
	defer globalMu.Unlock()
	d := min(max(globalSettings.ViewDistance+delta, MinViewDistance), MaxViewDistance)
	globalSettings.ViewDistance = d
	return d
}
