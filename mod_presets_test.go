package particles

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetSerialization(t *testing.T) {
	newApp := func() *App {
		return NewAppBuilder().
			UseModule(TimeModule{FixedStep: 10 * time.Millisecond}, ParticlesModule{Config: testConfig(), Backend: device.NameSoft}).
			Build()
	}

	src := newApp()
	defer src.Close()
	src.RunFrames(5)
	state, _ := Resource[ParticleState](src)
	cam, _ := Resource[core.CameraState](src)
	cam.Yaw = 0.5

	testFile := filepath.Join(t.TempDir(), "preset.json")
	require.NoError(t, SavePreset(state, cam, testFile))
	want, err := state.Engine.ReadParticles()
	require.NoError(t, err)
	require.NotEmpty(t, want)

	dst := newApp()
	defer dst.Close()
	dstState, _ := Resource[ParticleState](dst)
	dstCam, _ := Resource[core.CameraState](dst)

	n, err := LoadPreset(dstState, dstCam, testFile)
	require.NoError(t, err)
	assert.Equal(t, len(want), n)
	assert.Equal(t, uint32(n), dstState.Engine.Alive())
	assert.Equal(t, float32(0.5), dstCam.Yaw)

	got, err := dstState.Engine.ReadParticles()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadPresetMissingFile(t *testing.T) {
	app := NewAppBuilder().UseModule(ParticlesModule{Config: testConfig(), Backend: device.NameSoft}).Build()
	defer app.Close()
	state, _ := Resource[ParticleState](app)

	_, err := LoadPreset(state, nil, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
