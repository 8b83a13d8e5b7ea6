package engine

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/gekko3d/particles/particlert/rt/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBindSoA(t *testing.T) {
	var s ParticleStore
	require.NoError(t, s.Setup(soft.New(), 256, 4, core.NumAttributeSlots, core.LayoutSoA, "t"))
	defer s.Release()

	assert.Equal(t, uint64(256*3*16), s.BufferSize())
	bs := s.Bind(RoleRead)
	require.Len(t, bs, 3)
	for i, b := range bs {
		assert.Equal(t, uint32(4+i), b.Slot)
		assert.Equal(t, uint64(i)*256*16, b.Offset)
		assert.Equal(t, uint64(256*16), b.Size)
		assert.Equal(t, device.AccessRead, b.Access)
	}

	vl := s.VertexLayout()
	assert.Equal(t, uint64(16), vl.Stride)
	assert.Equal(t, uint64(2*256*16), vl.Attributes[core.AttrAgeLife].Offset)
}

func TestStoreBindAoS(t *testing.T) {
	var s ParticleStore
	require.NoError(t, s.Setup(soft.New(), 256, 0, core.NumAttributeSlots, core.LayoutAoS, "t"))
	defer s.Release()

	bs := s.Bind(RoleWrite)
	require.Len(t, bs, 1)
	assert.Equal(t, s.Buffer(RoleWrite), bs[0].Buffer)
	assert.Equal(t, s.BufferSize(), bs[0].Size)

	vl := s.VertexLayout()
	assert.Equal(t, uint64(48), vl.Stride)
	assert.Equal(t, uint64(32), vl.Attributes[core.AttrAgeLife].Offset)
}

func TestStoreSwapAndFlip(t *testing.T) {
	dev := soft.New()
	var s ParticleStore
	require.NoError(t, s.Setup(dev, 256, 0, core.NumAttributeSlots, core.LayoutSoA, "t"))
	defer s.Release()

	read, write := s.Buffer(RoleRead), s.Buffer(RoleWrite)
	require.NotEqual(t, read, write)

	dev.WriteBuffer(write, 0, []byte{1, 2, 3, 4})
	s.Swap()
	assert.Equal(t, read, s.Buffer(RoleRead))
	got, err := dev.ReadBuffer(read, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	s.Flip()
	assert.Equal(t, write, s.Buffer(RoleRead))
	assert.Equal(t, read, s.Buffer(RoleWrite))
}

func TestAliveCounter(t *testing.T) {
	dev := soft.New()
	var c AliveCounter
	require.NoError(t, c.Init(dev, 100, "t"))
	defer c.Release()

	assert.Equal(t, uint32(0), c.ReadIndex())
	assert.Equal(t, uint64(4), c.WriteOffset())
	assert.Equal(t, uint32(100), c.Free())

	c.Add(70)
	c.Add(70)
	assert.Equal(t, uint32(100), c.Alive())
	assert.Zero(t, c.Free())

	assert.True(t, c.Set(12))
	assert.False(t, c.Set(101))
	assert.Equal(t, uint32(100), c.Alive())

	c.SwapRoles()
	assert.Equal(t, uint32(1), c.ReadIndex())
	assert.Equal(t, uint64(4), c.ReadOffset())
	assert.Equal(t, uint64(0), c.WriteOffset())

	data, err := dev.ReadBuffer(c.Buffer(), 0, core.AliveCounterSize)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, core.AliveCounterSize), data)
}

func TestRandomSupply(t *testing.T) {
	dev := soft.New()
	gen := func(seed uint64) ([]float32, uint32) {
		var r RandomSupply
		require.NoError(t, r.Init(dev, 64, seed, "t"))
		defer r.Release()
		r.Generate()
		assert.Less(t, r.Offset(), r.Count())
		data, err := dev.ReadBuffer(r.buf, 0, 64*4)
		require.NoError(t, err)
		out := make([]float32, 64)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, r.Offset()
	}

	a, offA := gen(7)
	b, offB := gen(7)
	c, _ := gen(8)
	assert.Equal(t, a, b)
	assert.Equal(t, offA, offB)
	assert.NotEqual(t, a, c)
	for _, v := range a {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.Less(t, v, float32(1))
	}
}

func TestIndirectArgsInit(t *testing.T) {
	dev := soft.New()
	var a IndirectArgs
	require.NoError(t, a.Init(dev, 6, "t"))
	defer a.Release()

	got, err := a.Read()
	require.NoError(t, err)
	assert.Equal(t, core.IndirectArgs{DispatchY: 1, DispatchZ: 1, VertexCount: 6}, got)
}

func TestSortBuffersSizing(t *testing.T) {
	dev := soft.New()
	var s SortBuffers
	require.NoError(t, s.Init(dev, 768, "t"))
	defer s.Release()

	assert.Equal(t, uint32(1024), s.MaxCount())
	assert.Equal(t, uint64(4096), s.RenderOffset())
	assert.Equal(t, uint64(4096), s.Keys().Size())
	assert.Equal(t, uint64(8192), s.Indices().Size())
}

func TestProfilerKeepsScopeOrder(t *testing.T) {
	p := NewProfiler()
	p.BeginScope(ScopeEmit)
	p.EndScope(ScopeEmit)
	p.BeginScope(ScopeSimulate)
	p.EndScope(ScopeSimulate)
	p.BeginScope(ScopeEmit)
	p.EndScope(ScopeEmit)
	p.SetCount("alive", 12)

	assert.Equal(t, []string{ScopeEmit, ScopeSimulate}, p.Order)
	assert.Contains(t, p.GetStatsString(), "alive")
	p.Reset()
	assert.Zero(t, p.Durations()[ScopeEmit])
}
