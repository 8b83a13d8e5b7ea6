package engine

import (
	"encoding/binary"
	"fmt"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
)

// RenderTarget is everything a renderer needs to draw the current frame.
type RenderTarget struct {
	Particles device.Buffer
	Layout    VertexLayout
	Bindings  []device.Binding

	Args       device.Buffer
	DrawOffset uint64

	// Indices is nil unless the frame was sorted. The render order starts
	// at IndicesOffset.
	Indices       device.Buffer
	IndicesOffset uint64
	Sorted        bool

	Alive    uint32
	Capacity uint32
	Render   core.RenderConfig
}

// RenderTarget describes the READ buffer after PostProcess.
func (e *Engine) RenderTarget() RenderTarget {
	t := RenderTarget{
		Particles:  e.store.Buffer(RoleRead),
		Layout:     e.store.VertexLayout(),
		Bindings:   e.store.Bind(RoleRead),
		Args:       e.args.Buffer(),
		DrawOffset: core.DrawArgsOffset,
		Sorted:     e.sorted,
		Alive:      e.counter.Alive(),
		Capacity:   e.capacity,
		Render:     e.cfg.Render,
	}
	if e.sorted && e.sort != nil {
		t.Indices = e.sort.Indices()
		t.IndicesOffset = e.sort.RenderOffset()
	}
	return t
}

// ReadParticles copies the live particles of the READ buffer to the host.
func (e *Engine) ReadParticles() ([]core.Particle, error) {
	buf := e.store.Buffer(RoleRead)
	data, err := e.dev.ReadBuffer(buf, 0, buf.Size())
	if err != nil {
		return nil, fmt.Errorf("read particles: %w", err)
	}
	return core.DecodeParticles(data, e.cfg.Layout, e.capacity, e.counter.Alive()), nil
}

// SortedIndices returns the render order of the last sorted frame, or nil.
func (e *Engine) SortedIndices() ([]uint32, error) {
	if !e.sorted || e.sort == nil {
		return nil, nil
	}
	n := e.counter.Alive()
	if n == 0 {
		return []uint32{}, nil
	}
	// Sort may have run outside Step, without PostProcess's final barrier.
	e.dev.Barrier(device.BarrierBufferUpdate)
	data, err := e.dev.ReadBuffer(e.sort.Indices(), e.sort.RenderOffset(), uint64(n)*4)
	if err != nil {
		return nil, fmt.Errorf("read sort indices: %w", err)
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out, nil
}

func (e *Engine) ReadArgs() (core.IndirectArgs, error) {
	a, err := e.args.Read()
	if err != nil {
		return a, fmt.Errorf("read indirect args: %w", err)
	}
	return a, nil
}

// LoadParticles replaces the READ buffer contents with ps. Particles beyond
// the capacity are dropped. The previous sort order no longer applies, so
// the next RenderTarget is unsorted until the next sorted frame.
func (e *Engine) LoadParticles(ps []core.Particle) error {
	if uint32(len(ps)) > e.capacity {
		e.log.Warnf("[%s] loading %d particles, keeping %d", e.label, len(ps), e.capacity)
		ps = ps[:e.capacity]
	}
	n := uint32(len(ps))
	e.dev.WriteBuffer(e.store.Buffer(RoleRead), 0, core.EncodeParticles(ps, e.cfg.Layout, e.capacity))
	e.dev.WriteBuffer(e.counter.Buffer(), e.counter.ReadOffset(), binary.LittleEndian.AppendUint32(nil, n))
	e.counter.Set(n)
	e.latest = RoleRead
	e.sorted = false
	e.copyInstanceCount()
	return e.dev.Submit()
}
