package shaders

import (
	_ "embed"
)

//go:embed particle_emit.wgsl
var ParticleEmitWGSL string

//go:embed particle_sim_args.wgsl
var ParticleSimArgsWGSL string

//go:embed particle_simulate.wgsl
var ParticleSimulateWGSL string

//go:embed sort_common.wgsl
var sortCommonWGSL string

//go:embed sort_reset.wgsl
var sortResetWGSL string

//go:embed sort_keys.wgsl
var sortKeysWGSL string

//go:embed sort_step.wgsl
var sortStepWGSL string

//go:embed sort_final.wgsl
var sortFinalWGSL string

//go:embed particles_render.wgsl
var ParticlesRenderWGSL string

// The sort kernels share one parameter block.
var (
	SortResetWGSL = sortCommonWGSL + sortResetWGSL
	SortKeysWGSL  = sortCommonWGSL + sortKeysWGSL
	SortStepWGSL  = sortCommonWGSL + sortStepWGSL
	SortFinalWGSL = sortCommonWGSL + sortFinalWGSL
)

// Kernel returns the WGSL source of a compute kernel by entry point name.
func Kernel(name string) (string, bool) {
	switch name {
	case "particle_emit":
		return ParticleEmitWGSL, true
	case "particle_sim_args":
		return ParticleSimArgsWGSL, true
	case "particle_simulate":
		return ParticleSimulateWGSL, true
	case "sort_reset":
		return SortResetWGSL, true
	case "sort_keys":
		return SortKeysWGSL, true
	case "sort_step":
		return SortStepWGSL, true
	case "sort_final":
		return SortFinalWGSL, true
	}
	return "", false
}
