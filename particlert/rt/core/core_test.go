package core

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCapacity(t *testing.T) {
	assert.Equal(t, uint32(768), NormalizeCapacity(1000, 256))
	assert.Equal(t, uint32(1024), NormalizeCapacity(1024, 256))
	assert.Equal(t, uint32(256), NormalizeCapacity(10, 256))
	assert.Equal(t, uint32(10), NormalizeCapacity(10, 0))
}

func TestBatchEmitCount(t *testing.T) {
	assert.Equal(t, uint32(MinBatchEmitCount), BatchEmitCount(256))
	assert.Equal(t, uint32(4096), BatchEmitCount(1<<16))
}

func TestPow2Helpers(t *testing.T) {
	for n, want := range map[uint32]uint32{0: 1, 1: 1, 2: 2, 3: 4, 10: 16, 768: 1024, 1024: 1024} {
		assert.Equal(t, want, NextPow2(n), "NextPow2(%d)", n)
	}
	assert.Equal(t, uint32(10), Log2(1024))
	assert.Equal(t, uint32(0), Log2(1))
	assert.Equal(t, uint32(3), NumGroups(513, 256))
}

func TestAttrIndex(t *testing.T) {
	assert.Equal(t, uint32(2*100+7), AttrIndex(LayoutSoA, 100, 3, 2, 7))
	assert.Equal(t, uint32(7*3+2), AttrIndex(LayoutAoS, 100, 3, 2, 7))
}

func TestParticleEncodingRoundTrip(t *testing.T) {
	ps := []Particle{
		{Position: mgl32.Vec3{1, 2, 3}, RestLife: 0.5, Velocity: mgl32.Vec3{4, 5, 6}, Age: 1, Lifetime: 2},
		{Position: mgl32.Vec3{-1, 0, 9}, RestLife: 1, Lifetime: 3},
	}
	for _, layout := range []Layout{LayoutSoA, LayoutAoS} {
		data := EncodeParticles(ps, layout, 8)
		assert.Len(t, data, 8*NumAttributeSlots*AttributeSlotSize)
		assert.Equal(t, ps, DecodeParticles(data, layout, 8, 2))
	}
}

func TestSortBasisLooksDownNegativeZ(t *testing.T) {
	view := mgl32.LookAtV(mgl32.Vec3{1, 2, 10}, mgl32.Vec3{1, 2, 0}, mgl32.Vec3{0, 1, 0})
	pos, dir := SortBasis(view)
	assert.InDelta(t, 1, pos.X(), 1e-4)
	assert.InDelta(t, 2, pos.Y(), 1e-4)
	assert.InDelta(t, 10, pos.Z(), 1e-4)
	assert.InDelta(t, 1, dir.Z(), 1e-5)

	near := SortKey(mgl32.Vec3{0, 0, 5}, pos, dir)
	far := SortKey(mgl32.Vec3{0, 0, -5}, pos, dir)
	assert.Greater(t, near, far)
}

func TestParamsLayout(t *testing.T) {
	assert.Len(t, EmitParams{}.Bytes(), 80)
	assert.Len(t, SimParams{}.Bytes(), 112)
	assert.Len(t, SortParams{}.Bytes(), 64)
	assert.Len(t, ArgsParams{}.Bytes(), 16)

	p := SimParams{Dt: 0.5, WriteIndex: 1, Flags: FlagCurlNoise, FieldDims: [3]uint32{2, 3, 4}, FieldExtent: mgl32.Vec3{1, 1, 1}}
	assert.Equal(t, p, DecodeSimParams(p.Bytes()))
}

func TestRenderParamsBlock(t *testing.T) {
	view := mgl32.LookAtV(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	p := NewRenderParams(view, mgl32.Ident4(), DefaultConfig().Render)
	p.Capacity = 1024
	p.Layout = LayoutAoS
	p.RenderOffset = 1024
	p.Sorted = true

	b := p.Bytes()
	require.Len(t, b, 176)
	assert.InDelta(t, 1, math.Float32frombits(binary.LittleEndian.Uint32(b[64:])), 1e-6)
	assert.InDelta(t, 1, math.Float32frombits(binary.LittleEndian.Uint32(b[84:])), 1e-6)
	u := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	assert.Equal(t, uint32(1024), u(128))
	assert.Equal(t, uint32(LayoutAoS), u(132))
	assert.Equal(t, uint32(1024), u(136))
	assert.Equal(t, uint32(1), u(140))
	assert.Equal(t, uint32(ColorGradient), u(148))
}

func TestIndirectArgsOffsets(t *testing.T) {
	a := IndirectArgs{DispatchX: 3, DispatchY: 1, DispatchZ: 1, VertexCount: 6, InstanceCount: 99}
	b := a.Bytes()
	assert.Equal(t, byte(99), b[InstanceCountOffset])
	assert.Equal(t, a, DecodeIndirectArgs(b))
}

func TestValidateNormalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Emitter.MinAge = 5
	cfg.Emitter.MaxAge = 1
	cfg.Emitter.Rate = -3
	cfg.Simulation.TimeStepFactor = 0
	cfg.Simulation.BoundingSize = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, float32(1), cfg.Emitter.MinAge)
	assert.Equal(t, float32(5), cfg.Emitter.MaxAge)
	assert.Zero(t, cfg.Emitter.Rate)
	assert.Equal(t, float32(1), cfg.Simulation.TimeStepFactor)
	assert.Equal(t, BoundingNone, cfg.Simulation.BoundingVolume)

	cfg.MaxParticles = 0
	assert.Error(t, cfg.Validate())
}

const sampleConfig = `
max_particles = 1000
layout = "aos"
sorting = false

[emitter]
emitter_type = "ball"
emitter_radius = 2.5
emit_rate = 100.0

[simulation]
bounding_volume = "box"
bounding_size = 8.0

[simulation.curl_noise]
enabled = false
factor = 0.0
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "particles.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), cfg.MaxParticles)
	assert.Equal(t, uint32(768), cfg.Capacity())
	assert.Equal(t, LayoutAoS, cfg.Layout)
	assert.False(t, cfg.Sorting)
	assert.Equal(t, EmitterBall, cfg.Emitter.Type)
	assert.Equal(t, float32(2.5), cfg.Emitter.Radius)
	assert.Equal(t, BoundingBox, cfg.Simulation.BoundingVolume)
	assert.False(t, cfg.Simulation.CurlNoise.Enabled)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultConfig().Emitter.MaxAge, cfg.Emitter.MaxAge)
}

func TestLoadConfigRejectsUnknownEnum(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `layout = "diagonal"`))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := DefaultConfig()
	cfg.Emitter.Type = EmitterDisk
	require.NoError(t, SaveConfig(path, cfg))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, EmitterDisk, got.Emitter.Type)
	assert.Equal(t, cfg.MaxParticles, got.MaxParticles)
	assert.Equal(t, cfg.Simulation.BoundingVolume, got.Simulation.BoundingVolume)
	assert.InDelta(t, cfg.Render.MaxSize, got.Render.MaxSize, 1e-6)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changes := make(chan Config, 16)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c Config) { changes <- c }, nil) }()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("max_particles = 2048\n"), 0o644))

	// a truncating write can surface an empty file first
	for reloaded := false; !reloaded; {
		select {
		case cfg := <-changes:
			reloaded = cfg.MaxParticles == 2048
		case <-ctx.Done():
			t.Fatal("no reload observed")
		}
	}
	cancel()
	assert.NoError(t, <-done)
}
