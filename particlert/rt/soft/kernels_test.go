package soft

import (
	"math/rand/v2"
	"testing"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimArgsSizing(t *testing.T) {
	cases := []struct {
		alive uint32
		want  uint32
	}{
		{0, 0}, {1, 1}, {256, 1}, {257, 2}, {1000, 4},
	}
	d := New()
	counters := mustBuffer(t, d, "counters", core.AliveCounterSize)
	args := mustBuffer(t, d, "args", core.IndirectArgsSize)
	k := mustKernel(t, d, core.KernelSimArgs, 1)

	for _, tc := range cases {
		d.WriteBuffer(counters, 0, u32Bytes(7, tc.alive))
		d.Dispatch(k, core.ArgsParams{CounterIndex: 1, GroupWidth: core.GroupWidth}.Bytes(), []device.Binding{
			{Slot: 1, Buffer: counters, Access: device.AccessRead},
			{Slot: 2, Buffer: args, Access: device.AccessReadWrite},
		}, [3]uint32{1, 1, 1})
		d.Barrier(device.BarrierAll)
		got := readU32s(t, d, args, 3)
		assert.Equal(t, []uint32{tc.want, 1, 1}, got, "alive=%d", tc.alive)
	}
	assert.Empty(t, d.Hazards())
}

func TestBitonicStepsSortDescending(t *testing.T) {
	const m = 64
	d := New()
	keys := mustBuffer(t, d, "keys", m*4)
	indices := mustBuffer(t, d, "indices", 2*m*4)
	step := mustKernel(t, d, core.KernelSortStep, core.GroupWidth)

	rng := rand.New(rand.NewPCG(3, 4))
	in := make([]float32, m)
	idx := make([]uint32, m)
	for i := range in {
		in[i] = rng.Float32()*200 - 100
		idx[i] = uint32(i)
	}
	d.WriteBuffer(keys, 0, f32Bytes(in...))
	d.WriteBuffer(indices, 0, u32Bytes(idx...))

	bindings := []device.Binding{
		{Slot: 1, Buffer: keys, Access: device.AccessReadWrite},
		{Slot: 2, Buffer: indices, Access: device.AccessReadWrite},
	}
	for s := uint32(0); s < core.Log2(m); s++ {
		for st := uint32(0); st <= s; st++ {
			p := core.SortParams{Count: m, BlockWidth: 1 << (s - st + 1), MaxBlockWidth: 1 << (s + 1)}
			d.Dispatch(step, p.Bytes(), bindings, [3]uint32{core.NumGroups(m/2, core.GroupWidth), 1, 1})
			d.Barrier(device.BarrierStorage)
		}
	}
	d.Barrier(device.BarrierBufferUpdate)

	outKeys := readF32s(t, d, keys, m)
	outIdx := readU32s(t, d, indices, m)
	for i := 1; i < m; i++ {
		assert.GreaterOrEqual(t, outKeys[i-1], outKeys[i])
	}
	for i := range outIdx {
		assert.Equal(t, in[outIdx[i]], outKeys[i], "index %d follows its key", i)
	}
	assert.Empty(t, d.Hazards())
}

func TestEmitAllocatesUniqueSlots(t *testing.T) {
	const capacity, count = 2048, 1500
	d := New()
	store := mustBuffer(t, d, "store", capacity*core.NumAttributeSlots*core.AttributeSlotSize)
	counters := mustBuffer(t, d, "counters", core.AliveCounterSize)
	random := mustBuffer(t, d, "random", 4*4*count)

	rng := rand.New(rand.NewPCG(1, 2))
	rv := make([]float32, 4*count)
	for i := range rv {
		rv[i] = rng.Float32()
	}
	d.WriteBuffer(random, 0, f32Bytes(rv...))

	k := mustKernel(t, d, core.KernelEmit, core.GroupWidth)
	p := core.EmitParams{
		Count: count, Capacity: capacity, Layout: core.LayoutAoS,
		RandCount: uint32(len(rv)), EmitterType: core.EmitterBall, Radius: 2,
		MinAge: 1, MaxAge: 3, Position: mgl32.Vec3{5, 0, 0}, Direction: mgl32.Vec3{0, 2, 0},
	}
	d.Dispatch(k, p.Bytes(), []device.Binding{
		{Slot: 1, Buffer: store, Access: device.AccessReadWrite},
		{Slot: 2, Buffer: counters, Access: device.AccessAtomic},
		{Slot: 3, Buffer: random, Access: device.AccessRead},
	}, [3]uint32{core.NumGroups(count, core.GroupWidth), 1, 1})
	d.Barrier(device.BarrierAll)

	assert.Equal(t, []uint32{count, 0}, readU32s(t, d, counters, 2))
	data, err := d.ReadBuffer(store, 0, store.Size())
	require.NoError(t, err)
	for i, pt := range core.DecodeParticles(data, core.LayoutAoS, capacity, count) {
		require.True(t, pt.Lifetime >= 1 && pt.Lifetime <= 3, "particle %d lifetime %v", i, pt.Lifetime)
		assert.LessOrEqual(t, pt.Position.Sub(p.Position).Len(), float32(2.0001))
		assert.Equal(t, p.Direction, pt.Velocity)
		assert.Zero(t, pt.Age)
	}
}

func TestEmitterShapes(t *testing.T) {
	base := core.EmitParams{Position: mgl32.Vec3{1, 2, 3}, Direction: mgl32.Vec3{0, 0, 4}, Radius: 2}
	rng := rand.New(rand.NewPCG(9, 9))
	for range 200 {
		r := [4]float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}

		p := base
		p.EmitterType = core.EmitterPoint
		pos, vel := SampleEmitter(p, r)
		assert.Equal(t, base.Position, pos)
		assert.Equal(t, base.Direction, vel)

		p.EmitterType = core.EmitterSphere
		pos, _ = SampleEmitter(p, r)
		assert.InDelta(t, 2, pos.Sub(base.Position).Len(), 1e-4)

		p.EmitterType = core.EmitterBall
		pos, _ = SampleEmitter(p, r)
		assert.LessOrEqual(t, pos.Sub(base.Position).Len(), float32(2.0001))

		p.EmitterType = core.EmitterDisk
		pos, _ = SampleEmitter(p, r)
		off := pos.Sub(base.Position)
		assert.LessOrEqual(t, off.Len(), float32(2.0001))
		assert.InDelta(t, 0, off.Z(), 1e-4, "disk lies in the plane normal to the direction")
	}
}

func TestCurlNoiseIsDivergenceFree(t *testing.T) {
	const h = 1e-2
	for _, p := range []mgl32.Vec3{{0, 0, 0}, {1.3, -0.7, 2.1}, {-3, 4, 0.5}} {
		div := (CurlNoise(p.Add(mgl32.Vec3{h, 0, 0}), 0.4)[0] - CurlNoise(p.Sub(mgl32.Vec3{h, 0, 0}), 0.4)[0]) / (2 * h)
		div += (CurlNoise(p.Add(mgl32.Vec3{0, h, 0}), 0.4)[1] - CurlNoise(p.Sub(mgl32.Vec3{0, h, 0}), 0.4)[1]) / (2 * h)
		div += (CurlNoise(p.Add(mgl32.Vec3{0, 0, h}), 0.4)[2] - CurlNoise(p.Sub(mgl32.Vec3{0, 0, h}), 0.4)[2]) / (2 * h)
		assert.InDelta(t, 0, div, 1e-3)
	}
}

func TestConstrainReflects(t *testing.T) {
	pos, vel := Constrain(mgl32.Vec3{0, 12, 0}, mgl32.Vec3{0, 3, 1}, core.BoundingSphere, 10)
	assert.InDelta(t, 10, pos.Len(), 1e-4)
	assert.Equal(t, mgl32.Vec3{0, -3, 1}, vel)

	pos, vel = Constrain(mgl32.Vec3{-7, 2, 9}, mgl32.Vec3{-1, 1, 1}, core.BoundingBox, 5)
	assert.Equal(t, mgl32.Vec3{-5, 2, 5}, pos)
	assert.Equal(t, mgl32.Vec3{1, 1, -1}, vel)

	pos, vel = Constrain(mgl32.Vec3{100, 0, 0}, mgl32.Vec3{1, 0, 0}, core.BoundingNone, 5)
	assert.Equal(t, mgl32.Vec3{100, 0, 0}, pos)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, vel)
}

func TestStepAgesAndDamps(t *testing.T) {
	pt := core.Particle{Velocity: mgl32.Vec3{2, 0, 0}, Lifetime: 4}
	p := core.SimParams{Dt: 1, Flags: core.FlagVelocityControl, Velocity: 0.5}
	out := Step(pt, p, [4]float32{}, View{})
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, out.Velocity)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, out.Position)
	assert.Equal(t, float32(1), out.Age)
	assert.InDelta(t, 0.75, out.RestLife, 1e-6)
	assert.True(t, out.Alive())

	p.Dt = 4
	assert.False(t, Step(pt, p, [4]float32{}, View{}).Alive())
}

func TestSampleFieldNearestCell(t *testing.T) {
	d := New()
	field := mustBuffer(t, d, "field", 2*16)
	d.WriteBuffer(field, 0, f32Bytes(1, 0, 0, 0, 0, 2, 0, 0))
	view := View{words: field.(*Buffer).words}

	p := core.SimParams{FieldDims: [3]uint32{2, 1, 1}, FieldOrigin: mgl32.Vec3{0, 0, 0}, FieldExtent: mgl32.Vec3{2, 1, 1}}
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, SampleField(view, p, mgl32.Vec3{0.5, 0.5, 0.5}))
	assert.Equal(t, mgl32.Vec3{0, 2, 0}, SampleField(view, p, mgl32.Vec3{1.5, 0.5, 0.5}))
	assert.Equal(t, mgl32.Vec3{0, 2, 0}, SampleField(view, p, mgl32.Vec3{40, 0, 0}), "outside clamps to the border")
	assert.Equal(t, mgl32.Vec3{}, SampleField(view, core.SimParams{}, mgl32.Vec3{}))
}
