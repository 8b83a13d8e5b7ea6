package particles

import (
	"bytes"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/gekko3d/particles/metrics"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.MaxParticles = 1024
	cfg.Emitter.Rate = 6000
	return cfg
}

func TestParticlesModuleRunsEngine(t *testing.T) {
	var logs bytes.Buffer
	app := NewAppBuilder().
		UseModule(
			LoggingModule{Prefix: "test", Out: &logs},
			TimeModule{FixedStep: 10 * time.Millisecond},
		).
		Build()
	app.UseBackend(device.NameSoft, ParticlesModule{Config: testConfig(), Backend: device.NameSoft})

	app.RunFrames(10)

	state, ok := Resource[ParticleState](app)
	require.True(t, ok)
	assert.Equal(t, uint64(10), state.Engine.Stats().Frames)
	assert.Positive(t, state.Engine.Alive())
	assert.True(t, state.Last.Sorted)
	assert.Equal(t, state.Engine.Alive(), state.Last.Alive)
	assert.Contains(t, logs.String(), "Particle backend selected: soft")

	tm, _ := Resource[Time](app)
	assert.Equal(t, 100*time.Millisecond, tm.Elapsed)

	app.Close()
}

func TestParticlesModulePause(t *testing.T) {
	app := NewAppBuilder().
		UseModule(TimeModule{FixedStep: time.Millisecond}, ParticlesModule{Config: testConfig(), Backend: device.NameSoft}).
		Build()
	defer app.Close()

	state, _ := Resource[ParticleState](app)
	state.Paused = true
	app.RunFrames(3)
	assert.Zero(t, state.Engine.Stats().Frames)
}

func TestParticlesModuleInstallsDefaults(t *testing.T) {
	app := NewAppBuilder().UseModule(ParticlesModule{Config: testConfig(), Backend: device.NameSoft}).Build()
	defer app.Close()

	_, ok := Resource[Time](app)
	assert.True(t, ok)
	_, ok = Resource[core.CameraState](app)
	assert.True(t, ok)
	tag, ok := Resource[BackendTag](app)
	require.True(t, ok)
	assert.Equal(t, device.NameSoft, tag.Name)
}

func TestSecondBackendPanics(t *testing.T) {
	app := NewAppBuilder().UseModule(ParticlesModule{Config: testConfig(), Backend: device.NameSoft}).Build()
	defer app.Close()

	assert.Panics(t, func() { app.UseBackend(device.NameWGPU, &MockModule{}) })
}

func TestParticlesModuleUnknownBackendPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewAppBuilder().UseModule(ParticlesModule{Config: testConfig(), Backend: "vulkan9"}).Build()
	})
}

func TestParticlesModuleMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	col := metrics.NewCollectors(reg)
	app := NewAppBuilder().
		UseModule(TimeModule{FixedStep: 10 * time.Millisecond}, ParticlesModule{Config: testConfig(), Backend: device.NameSoft, Metrics: col}).
		Build()

	app.RunFrames(4)
	state, _ := Resource[ParticleState](app)
	label := state.Engine.Label()
	assert.Equal(t, float64(state.Engine.Alive()), testutil.ToFloat64(col.Alive.WithLabelValues(label)))
	assert.Equal(t, float64(state.Engine.Stats().Emitted), testutil.ToFloat64(col.Emitted.WithLabelValues(label)))

	app.Close()
	assert.Equal(t, 0, testutil.CollectAndCount(col.Alive))
}

func TestParticlesModuleHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "particles.toml")
	require.NoError(t, core.SaveConfig(path, testConfig()))
	cfg, err := core.LoadConfig(path)
	require.NoError(t, err)

	app := NewAppBuilder().
		UseModule(TimeModule{FixedStep: 10 * time.Millisecond}, ParticlesModule{Config: cfg, Backend: device.NameSoft, ConfigPath: path}).
		Build()
	defer app.Close()
	state, _ := Resource[ParticleState](app)
	require.True(t, state.Engine.Config().Sorting)

	// let the watcher register
	time.Sleep(100 * time.Millisecond)
	cfg.Sorting = false
	require.NoError(t, core.SaveConfig(path, cfg))

	assert.Eventually(t, func() bool {
		app.RunFrames(1)
		return !state.Engine.Config().Sorting
	}, 5*time.Second, 20*time.Millisecond)
}

func TestLoggerLevels(t *testing.T) {
	var out bytes.Buffer
	l := NewLoggerTo("p", false, &out, &out)
	l.Debugf("hidden")
	l.Infof("shown %d", 1)
	l.SetDebug(true)
	l.Debugf("now visible")
	l.Errorf("bad")

	s := out.String()
	assert.NotContains(t, s, "hidden")
	assert.Contains(t, s, "[p] INFO: shown 1")
	assert.Contains(t, s, "[p] DEBUG: now visible")
	assert.Contains(t, s, "[p] ERROR: bad")
}

func TestFlyingCameraMoves(t *testing.T) {
	app := NewAppBuilder().UseModule(TimeModule{FixedStep: 100 * time.Millisecond}, FlyingCameraModule{}).Build()
	cam, _ := Resource[core.CameraState](app)
	input, _ := Resource[CameraInput](app)
	start := cam.Position

	input.Move = mgl32.Vec3{0, 0, 1}
	app.RunFrames(1)
	// yaw 0 looks down -Z
	assert.InDelta(t, start.Z()-cam.Speed*0.1, cam.Position.Z(), 1e-4)

	input.Look = mgl32.Vec2{0, -1e6}
	app.RunFrames(1)
	assert.InDelta(t, 89*math.Pi/180, cam.Pitch, 1e-4)
	assert.Zero(t, input.Look.Len())
}
