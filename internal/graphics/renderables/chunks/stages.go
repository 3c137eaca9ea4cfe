package chunks

import (
	"voxelclient/internal/gpu"
	"voxelclient/internal/meshpool"
	"voxelclient/internal/registry"
)

// Stage is one step of the fixed per-frame pass order.
type Stage uint8

const (
	StageLiquidDepth Stage = iota
	StageShadowFar
	StageShadowNear
	StageOpaque
	StageTopSoil
	StageOpaqueNoCull
	StageBlendNoCull
	StageOIT
	StageAfterOIT

	NumStages = 9
)

var stageNames = [NumStages]string{
	"liquid-depth", "shadow-far", "shadow-near", "opaque", "topsoil",
	"opaque-nocull", "blend-nocull", "oit", "after-oit",
}

func (s Stage) String() string {
	if int(s) < NumStages {
		return stageNames[s]
	}
	return "stage?"
}

// Program names looked up in a ProgramSet.
const (
	ProgramLiquidDepth = "liquid-depth"
	ProgramShadow      = "shadow"
	ProgramOpaque      = "opaque"
	ProgramTopSoil     = "topsoil"
	ProgramTransparent = "transparent"
	ProgramLiquid      = "liquid"
)

// ProgramNames lists every program a ChunkRenderer needs.
var ProgramNames = []string{
	ProgramLiquidDepth, ProgramShadow, ProgramOpaque,
	ProgramTopSoil, ProgramTransparent, ProgramLiquid,
}

// stageStep draws some passes with one program.
type stageStep struct {
	program string
	passes  []registry.RenderPass
}

type stageDesc struct {
	steps []stageStep
	state gpu.RenderState
	cull  meshpool.CullMode
}

var (
	opaqueState = gpu.RenderState{CullBackFaces: true, DepthTest: true, DepthWrite: true, ColorWrite: true}
	shadowState = gpu.RenderState{CullBackFaces: false, DepthTest: true, DepthWrite: true, DepthBias: 1.5}
	shadowSteps = []stageStep{{ProgramShadow, []registry.RenderPass{
		registry.PassOpaque, registry.PassTopSoil, registry.PassOpaqueNoCull, registry.PassBlendNoCull,
	}}}
)

var stages = [NumStages]stageDesc{
	// drawn into the LiquidDepthTarget, never into the scene depth
	StageLiquidDepth: {
		steps: []stageStep{{ProgramLiquidDepth, []registry.RenderPass{registry.PassLiquid}}},
		state: gpu.RenderState{CullBackFaces: true, DepthTest: true, DepthWrite: true},
		cull:  meshpool.CullFrustum,
	},
	StageShadowFar:  {steps: shadowSteps, state: shadowState, cull: meshpool.CullShadowFar},
	StageShadowNear: {steps: shadowSteps, state: shadowState, cull: meshpool.CullShadowNear},
	StageOpaque: {
		steps: []stageStep{{ProgramOpaque, []registry.RenderPass{registry.PassOpaque}}},
		state: opaqueState,
		cull:  meshpool.CullFrustum,
	},
	StageTopSoil: {
		steps: []stageStep{{ProgramTopSoil, []registry.RenderPass{registry.PassTopSoil}}},
		state: opaqueState,
		cull:  meshpool.CullFrustum,
	},
	StageOpaqueNoCull: {
		steps: []stageStep{{ProgramOpaque, []registry.RenderPass{registry.PassOpaqueNoCull}}},
		state: gpu.RenderState{DepthTest: true, DepthWrite: true, ColorWrite: true},
		cull:  meshpool.CullFrustum,
	},
	StageBlendNoCull: {
		steps: []stageStep{{ProgramOpaque, []registry.RenderPass{registry.PassBlendNoCull}}},
		state: gpu.RenderState{DepthTest: true, DepthWrite: true, ColorWrite: true, Blend: gpu.BlendAlpha},
		cull:  meshpool.CullFrustum,
	},
	StageOIT: {
		steps: []stageStep{
			{ProgramTransparent, []registry.RenderPass{registry.PassTransparent}},
			{ProgramLiquid, []registry.RenderPass{registry.PassLiquid}},
		},
		state: gpu.RenderState{DepthTest: true, ColorWrite: true, Blend: gpu.BlendAccumulate},
		cull:  meshpool.CullFrustum,
	},
	StageAfterOIT: {
		steps: []stageStep{{ProgramOpaque, []registry.RenderPass{registry.PassMeta}}},
		state: opaqueState,
		cull:  meshpool.CullFrustum,
	},
}
