package shaders

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelSourcesDeclareEntryPoints(t *testing.T) {
	names := []string{"particle_emit", "particle_sim_args", "particle_simulate", "sort_reset", "sort_keys", "sort_step", "sort_final"}
	for _, name := range names {
		src, ok := Kernel(name)
		require.True(t, ok, name)
		assert.Contains(t, src, "fn "+name+"(", name)
		assert.Contains(t, src, "@binding(0) var<uniform> params", name)
	}
	_, ok := Kernel("missing")
	assert.False(t, ok)
}

func TestWorkgroupSizeMatchesGroupWidth(t *testing.T) {
	for _, src := range []string{ParticleEmitWGSL, ParticleSimulateWGSL, SortResetWGSL, SortKeysWGSL, SortStepWGSL, SortFinalWGSL} {
		assert.True(t, strings.Contains(src, "@workgroup_size(256)"))
	}
	assert.Contains(t, ParticleSimArgsWGSL, "@workgroup_size(1)")
}

func TestRenderShaderEntryPoints(t *testing.T) {
	assert.Contains(t, ParticlesRenderWGSL, "fn vs_main(")
	assert.Contains(t, ParticlesRenderWGSL, "fn fs_main(")
}
