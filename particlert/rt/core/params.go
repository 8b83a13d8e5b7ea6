package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Kernel names. WGSL entry points use the same names.
const (
	KernelEmit      = "particle_emit"
	KernelSimArgs   = "particle_sim_args"
	KernelSimulate  = "particle_simulate"
	KernelSortReset = "sort_reset"
	KernelSortKeys  = "sort_keys"
	KernelSortStep  = "sort_step"
	KernelSortFinal = "sort_final"
)

// Simulation feature flags packed into SimParams.Flags.
const (
	FlagScattering uint32 = 1 << iota
	FlagVectorField
	FlagCurlNoise
	FlagVelocityControl
)

// SortKeyFloor stands in for -infinity in the key buffer so padding slots
// sort behind every real particle.
const SortKeyFloor = -math.MaxFloat32

type wordWriter struct{ buf []byte }

func (w *wordWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *wordWriter) f32(v float32) { w.u32(math.Float32bits(v)) }

func (w *wordWriter) vec4(v mgl32.Vec3, pad float32) {
	w.f32(v[0])
	w.f32(v[1])
	w.f32(v[2])
	w.f32(pad)
}

// bytes pads to 16 bytes so the result is a valid uniform block.
func (w *wordWriter) bytes() []byte {
	for len(w.buf)%16 != 0 {
		w.u32(0)
	}
	return w.buf
}

type wordReader struct {
	buf []byte
	off int
}

func (r *wordReader) u32() uint32 {
	if r.off+4 > len(r.buf) {
		r.off += 4
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *wordReader) f32() float32 { return math.Float32frombits(r.u32()) }

func (r *wordReader) vec4() mgl32.Vec3 {
	v := mgl32.Vec3{r.f32(), r.f32(), r.f32()}
	r.u32()
	return v
}

// EmitParams mirrors the uniform block of particle_emit.
//
//	struct EmitParams {
//	  emit_count, capacity, layout, counter_index: u32,   // 0
//	  rand_count, rand_offset, emitter_type: u32, radius: f32, // 16
//	  min_age, max_age: f32, _pad0, _pad1: u32,            // 32
//	  position: vec4<f32>,                                 // 48
//	  direction: vec4<f32>,                                // 64
//	} // 80 bytes
type EmitParams struct {
	Count        uint32
	Capacity     uint32
	Layout       Layout
	CounterIndex uint32
	RandCount    uint32
	RandOffset   uint32
	EmitterType  EmitterType
	Radius       float32
	MinAge       float32
	MaxAge       float32
	Position     mgl32.Vec3
	Direction    mgl32.Vec3
}

func (p EmitParams) Bytes() []byte {
	w := &wordWriter{buf: make([]byte, 0, 80)}
	w.u32(p.Count)
	w.u32(p.Capacity)
	w.u32(uint32(p.Layout))
	w.u32(p.CounterIndex)
	w.u32(p.RandCount)
	w.u32(p.RandOffset)
	w.u32(uint32(p.EmitterType))
	w.f32(p.Radius)
	w.f32(p.MinAge)
	w.f32(p.MaxAge)
	w.u32(0)
	w.u32(0)
	w.vec4(p.Position, 0)
	w.vec4(p.Direction, 0)
	return w.bytes()
}

func DecodeEmitParams(b []byte) EmitParams {
	r := &wordReader{buf: b}
	p := EmitParams{
		Count:        r.u32(),
		Capacity:     r.u32(),
		Layout:       Layout(r.u32()),
		CounterIndex: r.u32(),
		RandCount:    r.u32(),
		RandOffset:   r.u32(),
		EmitterType:  EmitterType(r.u32()),
		Radius:       r.f32(),
		MinAge:       r.f32(),
		MaxAge:       r.f32(),
	}
	r.u32()
	r.u32()
	p.Position = r.vec4()
	p.Direction = r.vec4()
	return p
}

// ArgsParams mirrors the uniform block of particle_sim_args.
type ArgsParams struct {
	CounterIndex uint32
	GroupWidth   uint32
}

func (p ArgsParams) Bytes() []byte {
	w := &wordWriter{buf: make([]byte, 0, 16)}
	w.u32(p.CounterIndex)
	w.u32(p.GroupWidth)
	return w.bytes()
}

func DecodeArgsParams(b []byte) ArgsParams {
	r := &wordReader{buf: b}
	return ArgsParams{CounterIndex: r.u32(), GroupWidth: r.u32()}
}

// SimParams mirrors the uniform block of particle_simulate.
//
//	struct SimParams {
//	  dt, time: f32, capacity, layout: u32,                          // 0
//	  read_index, write_index, rand_count, rand_offset: u32,         // 16
//	  flags, bounding: u32, bounding_size, scattering: f32,          // 32
//	  vector_field, curl_noise, curl_scale, velocity: f32,           // 48
//	  field_dims: vec4<u32>,                                         // 64
//	  field_origin: vec4<f32>,                                       // 80
//	  field_extent: vec4<f32>,                                       // 96
//	} // 112 bytes
type SimParams struct {
	Dt           float32
	Time         float32
	Capacity     uint32
	Layout       Layout
	ReadIndex    uint32
	WriteIndex   uint32
	RandCount    uint32
	RandOffset   uint32
	Flags        uint32
	Bounding     BoundingVolume
	BoundingSize float32
	Scattering   float32
	VectorField  float32
	CurlNoise    float32
	CurlScale    float32
	Velocity     float32
	FieldDims    [3]uint32
	FieldOrigin  mgl32.Vec3
	FieldExtent  mgl32.Vec3
}

func (p SimParams) Bytes() []byte {
	w := &wordWriter{buf: make([]byte, 0, 112)}
	w.f32(p.Dt)
	w.f32(p.Time)
	w.u32(p.Capacity)
	w.u32(uint32(p.Layout))
	w.u32(p.ReadIndex)
	w.u32(p.WriteIndex)
	w.u32(p.RandCount)
	w.u32(p.RandOffset)
	w.u32(p.Flags)
	w.u32(uint32(p.Bounding))
	w.f32(p.BoundingSize)
	w.f32(p.Scattering)
	w.f32(p.VectorField)
	w.f32(p.CurlNoise)
	w.f32(p.CurlScale)
	w.f32(p.Velocity)
	w.u32(p.FieldDims[0])
	w.u32(p.FieldDims[1])
	w.u32(p.FieldDims[2])
	w.u32(0)
	w.vec4(p.FieldOrigin, 0)
	w.vec4(p.FieldExtent, 0)
	return w.bytes()
}

func DecodeSimParams(b []byte) SimParams {
	r := &wordReader{buf: b}
	p := SimParams{
		Dt:           r.f32(),
		Time:         r.f32(),
		Capacity:     r.u32(),
		Layout:       Layout(r.u32()),
		ReadIndex:    r.u32(),
		WriteIndex:   r.u32(),
		RandCount:    r.u32(),
		RandOffset:   r.u32(),
		Flags:        r.u32(),
		Bounding:     BoundingVolume(r.u32()),
		BoundingSize: r.f32(),
		Scattering:   r.f32(),
		VectorField:  r.f32(),
		CurlNoise:    r.f32(),
		CurlScale:    r.f32(),
		Velocity:     r.f32(),
	}
	p.FieldDims = [3]uint32{r.u32(), r.u32(), r.u32()}
	r.u32()
	p.FieldOrigin = r.vec4()
	p.FieldExtent = r.vec4()
	return p
}

// SortParams is shared by the four sort kernels.
//
//	struct SortParams {
//	  count, alive, block_width, max_block_width: u32, // 0
//	  layout, capacity, render_offset, _pad: u32,       // 16
//	  camera_pos: vec4<f32>,                            // 32
//	  view_dir: vec4<f32>,                              // 48
//	} // 64 bytes
type SortParams struct {
	Count         uint32
	Alive         uint32
	BlockWidth    uint32
	MaxBlockWidth uint32
	Layout        Layout
	Capacity      uint32
	RenderOffset  uint32
	CameraPos     mgl32.Vec3
	ViewDir       mgl32.Vec3
}

func (p SortParams) Bytes() []byte {
	w := &wordWriter{buf: make([]byte, 0, 64)}
	w.u32(p.Count)
	w.u32(p.Alive)
	w.u32(p.BlockWidth)
	w.u32(p.MaxBlockWidth)
	w.u32(uint32(p.Layout))
	w.u32(p.Capacity)
	w.u32(p.RenderOffset)
	w.u32(0)
	w.vec4(p.CameraPos, 0)
	w.vec4(p.ViewDir, 0)
	return w.bytes()
}

func DecodeSortParams(b []byte) SortParams {
	r := &wordReader{buf: b}
	p := SortParams{
		Count:         r.u32(),
		Alive:         r.u32(),
		BlockWidth:    r.u32(),
		MaxBlockWidth: r.u32(),
		Layout:        Layout(r.u32()),
		Capacity:      r.u32(),
		RenderOffset:  r.u32(),
	}
	r.u32()
	p.CameraPos = r.vec4()
	p.ViewDir = r.vec4()
	return p
}

// RenderParams mirrors the uniform block of particles_render.wgsl.
type RenderParams struct {
	ViewProj     mgl32.Mat4
	CamRight     mgl32.Vec3
	CamUp        mgl32.Vec3
	Capacity     uint32
	Layout       Layout
	RenderOffset uint32
	Sorted       bool
	Render       RenderConfig
}

// NewRenderParams fills the camera half of the block from view and proj.
func NewRenderParams(view, proj mgl32.Mat4, render RenderConfig) RenderParams {
	return RenderParams{
		ViewProj: proj.Mul4(view),
		CamRight: view.Row(0).Vec3(),
		CamUp:    view.Row(1).Vec3(),
		Render:   render,
	}
}

func (p RenderParams) Bytes() []byte {
	w := &wordWriter{}
	for _, v := range p.ViewProj {
		w.f32(v)
	}
	w.vec4(p.CamRight, 0)
	w.vec4(p.CamUp, 0)
	for _, c := range [][4]float32{p.Render.BirthColor, p.Render.DeathColor} {
		for _, v := range c {
			w.f32(v)
		}
	}
	sorted := uint32(0)
	if p.Sorted {
		sorted = 1
	}
	w.u32(p.Capacity)
	w.u32(uint32(p.Layout))
	w.u32(p.RenderOffset)
	w.u32(sorted)
	w.u32(uint32(p.Render.Mode))
	w.u32(uint32(p.Render.ColorMode))
	w.f32(p.Render.MinSize)
	w.f32(p.Render.MaxSize)
	w.f32(p.Render.StretchFactor)
	w.f32(p.Render.FadeFactor)
	return w.bytes()
}
