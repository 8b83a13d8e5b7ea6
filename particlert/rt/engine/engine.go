// Package engine runs the device-resident particle pipeline: emission,
// indirect simulation, the optional bitonic depth sort and the post-process
// that hands the buffers to a renderer.
package engine

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

type Options struct {
	Logger   Logger
	Profiler *Profiler
	// Label prefixes device buffer labels. Defaults to a short engine ID.
	Label string
}

// Stats are cumulative counters since the engine was created.
type Stats struct {
	Frames          uint64
	Emitted         uint64
	SimulatedFrames uint64
	SkippedFrames   uint64
	SortedFrames    uint64
	SortDispatches  uint64
	ReadbackErrors  uint64
	CounterClamps   uint64
}

// FrameResult summarizes one call to Frame or Step.
type FrameResult struct {
	Emitted   uint32
	Alive     uint32
	Simulated bool
	Sorted    bool
}

type kernels struct {
	emit      device.Kernel
	simArgs   device.Kernel
	simulate  device.Kernel
	sortReset device.Kernel
	sortKeys  device.Kernel
	sortStep  device.Kernel
	sortFinal device.Kernel
}

type vectorField struct {
	buf    device.Buffer
	dims   [3]uint32
	origin mgl32.Vec3
	extent mgl32.Vec3
}

type Engine struct {
	ID uuid.UUID

	dev      device.Device
	cfg      core.Config
	log      Logger
	profiler *Profiler
	label    string

	capacity uint32
	batchCap uint32

	store   ParticleStore
	random  RandomSupply
	counter AliveCounter
	args    IndirectArgs
	sort    *SortBuffers
	field   vectorField
	k       kernels

	simulated bool
	sorted    bool
	// latest is the store role holding the newest particle data.
	latest    Role
	time      float32
	emitDebt  float32
	stats     Stats
}

// New allocates every buffer and kernel of the pipeline on dev.
func New(dev device.Device, cfg core.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid particle config: %w", err)
	}
	e := &Engine{
		ID:       uuid.New(),
		dev:      dev,
		cfg:      cfg,
		log:      opts.Logger,
		profiler: opts.Profiler,
		label:    opts.Label,
	}
	if e.log == nil {
		e.log = nopLogger{}
	}
	if e.profiler == nil {
		e.profiler = NewProfiler()
	}
	if e.label == "" {
		e.label = "particles-" + e.ID.String()[:8]
	}

	e.capacity = cfg.Capacity()
	e.batchCap = min(cfg.BatchCap(), e.capacity)
	switch {
	case e.capacity > cfg.MaxParticles:
		e.log.Warnf("[%s] max_particles %d raised to one group of %d", e.label, cfg.MaxParticles, e.capacity)
	case e.capacity < cfg.MaxParticles:
		e.log.Warnf("[%s] max_particles %d floored to %d (group width %d)", e.label, cfg.MaxParticles, e.capacity, core.GroupWidth)
	}

	if err := e.init(); err != nil {
		e.Close()
		return nil, err
	}
	e.log.Infof("[%s] particle engine on %s device: capacity=%d batch=%d layout=%s sorting=%v",
		e.label, dev.Name(), e.capacity, e.batchCap, cfg.Layout, cfg.Sorting)
	return e, nil
}

func (e *Engine) init() error {
	cfg := e.cfg
	if err := e.store.Setup(e.dev, e.capacity, 0, core.NumAttributeSlots, cfg.Layout, e.label); err != nil {
		return err
	}
	if err := e.random.Init(e.dev, cfg.RandomValues(), cfg.Seed, e.label); err != nil {
		return err
	}
	if err := e.counter.Init(e.dev, e.capacity, e.label); err != nil {
		return err
	}
	if err := e.args.Init(e.dev, cfg.Render.VerticesPerParticle(), e.label); err != nil {
		return err
	}
	if err := e.SetVectorField([3]uint32{}, mgl32.Vec3{}, mgl32.Vec3{}, nil); err != nil {
		return err
	}

	defs := []struct {
		dst  *device.Kernel
		name string
		gw   uint32
	}{
		{&e.k.emit, core.KernelEmit, core.GroupWidth},
		{&e.k.simArgs, core.KernelSimArgs, 1},
		{&e.k.simulate, core.KernelSimulate, core.GroupWidth},
		{&e.k.sortReset, core.KernelSortReset, core.GroupWidth},
		{&e.k.sortKeys, core.KernelSortKeys, core.GroupWidth},
		{&e.k.sortStep, core.KernelSortStep, core.GroupWidth},
		{&e.k.sortFinal, core.KernelSortFinal, core.GroupWidth},
	}
	for _, s := range defs {
		k, err := e.dev.CreateKernel(device.KernelDesc{Name: s.name, EntryPoint: s.name, GroupWidth: s.gw})
		if err != nil {
			return fmt.Errorf("failed to create %s kernel: %w", s.name, err)
		}
		*s.dst = k
	}

	if cfg.Sorting {
		return e.ensureSortBuffers()
	}
	return nil
}

func (e *Engine) ensureSortBuffers() error {
	if e.sort != nil {
		return nil
	}
	sb := &SortBuffers{}
	if err := sb.Init(e.dev, e.capacity, e.label); err != nil {
		return err
	}
	e.sort = sb
	return nil
}

func (e *Engine) Device() device.Device { return e.dev }
func (e *Engine) Config() core.Config   { return e.cfg }
func (e *Engine) Capacity() uint32      { return e.capacity }
func (e *Engine) BatchCap() uint32      { return e.batchCap }
func (e *Engine) Alive() uint32         { return e.counter.Alive() }
func (e *Engine) Simulated() bool       { return e.simulated }
func (e *Engine) Sorted() bool          { return e.sorted }
func (e *Engine) Stats() Stats          { return e.stats }
func (e *Engine) Profiler() *Profiler   { return e.profiler }
func (e *Engine) Label() string         { return e.label }

// ApplyConfig swaps in the runtime-tunable parts of cfg. Changes to
// capacity, layout, batch size, random supply or seed need a new engine and
// are ignored.
func (e *Engine) ApplyConfig(cfg core.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid particle config: %w", err)
	}
	old := e.cfg
	if cfg.Capacity() != old.Capacity() || cfg.Layout != old.Layout ||
		cfg.BatchEmitCount != old.BatchEmitCount || cfg.RandomCount != old.RandomCount || cfg.Seed != old.Seed {
		e.log.Warnf("[%s] allocation settings changed; restart to apply", e.label)
	}
	if cfg.Sorting {
		if err := e.ensureSortBuffers(); err != nil {
			return err
		}
	}
	e.cfg.Emitter = cfg.Emitter
	e.cfg.Simulation = cfg.Simulation
	e.cfg.Render = cfg.Render
	e.cfg.Sorting = cfg.Sorting
	e.cfg.DirectDispatch = cfg.DirectDispatch
	return nil
}

// SetVectorField uploads a dims[0]*dims[1]*dims[2] grid of vectors covering
// the box [origin, origin+extent]. Cells are x-major. A nil grid disables
// the field.
func (e *Engine) SetVectorField(dims [3]uint32, origin, extent mgl32.Vec3, cells []mgl32.Vec3) error {
	n := uint64(dims[0]) * uint64(dims[1]) * uint64(dims[2])
	if len(cells) == 0 {
		dims, n = [3]uint32{}, 0
	} else if uint64(len(cells)) != n {
		return fmt.Errorf("vector field: %d cells for dims %v", len(cells), dims)
	}

	size := max(n, 1) * core.AttributeSlotSize
	if e.field.buf == nil || e.field.buf.Size() < size {
		if e.field.buf != nil {
			e.field.buf.Release()
		}
		buf, err := e.dev.CreateBuffer(device.BufferDesc{Label: e.label + "-field", Size: size, Usage: device.UsageStorage | device.UsageCopyDst})
		if err != nil {
			return fmt.Errorf("failed to create vector field buffer: %w", err)
		}
		e.field.buf = buf
	}
	data := make([]byte, size)
	for i, v := range cells {
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(data[i*16+c*4:], math.Float32bits(v[c]))
		}
	}
	e.dev.WriteBuffer(e.field.buf, 0, data)
	e.field.dims, e.field.origin, e.field.extent = dims, origin, extent
	return nil
}

// Frame runs one frame, requesting emission at the configured rate.
func (e *Engine) Frame(dt float32, view mgl32.Mat4) FrameResult {
	e.emitDebt += e.cfg.Emitter.Rate * dt
	requested := uint32(0)
	if e.emitDebt >= 1 {
		requested = uint32(min(e.emitDebt, float32(math.MaxUint32)))
		e.emitDebt -= float32(requested)
	}
	return e.Step(dt, requested, view)
}

// Step runs emission, simulation, sort and post-process in order.
func (e *Engine) Step(dt float32, requested uint32, view mgl32.Mat4) FrameResult {
	e.stats.Frames++

	e.profiler.BeginScope(ScopeRandom)
	e.random.Generate()
	e.profiler.EndScope(ScopeRandom)

	e.profiler.BeginScope(ScopeEmit)
	emitted := e.Emit(requested)
	e.profiler.EndScope(ScopeEmit)

	e.profiler.BeginScope(ScopeSimulate)
	e.Simulate(dt)
	e.profiler.EndScope(ScopeSimulate)

	e.profiler.BeginScope(ScopeSort)
	e.Sort(view)
	e.profiler.EndScope(ScopeSort)

	e.profiler.BeginScope(ScopePostProcess)
	e.PostProcess()
	e.profiler.EndScope(ScopePostProcess)

	e.profiler.SetCount("alive", int(e.Alive()))
	e.profiler.SetCount("emitted", int(emitted))

	return FrameResult{Emitted: emitted, Alive: e.Alive(), Simulated: e.simulated, Sorted: e.sorted}
}

// Emit appends up to requested particles to the buffer the next simulation
// reads. It returns the number emitted.
func (e *Engine) Emit(requested uint32) uint32 {
	count := min(requested, e.batchCap, e.counter.Free())
	if count == 0 {
		return 0
	}

	em := e.cfg.Emitter
	p := core.EmitParams{
		Count:        count,
		Capacity:     e.capacity,
		Layout:       e.cfg.Layout,
		CounterIndex: e.counter.ReadIndex(),
		RandCount:    e.random.Count(),
		RandOffset:   e.random.Offset(),
		EmitterType:  em.Type,
		Radius:       em.Radius,
		MinAge:       em.MinAge,
		MaxAge:       em.MaxAge,
		Position:     em.EmitterPosition(),
		Direction:    em.EmitterDirection(),
	}
	e.dev.Dispatch(e.k.emit, p.Bytes(), []device.Binding{
		e.store.KernelBinding(RoleRead, 1, device.AccessReadWrite),
		e.counter.Bind(2, device.AccessAtomic),
		e.random.Bind(3),
	}, [3]uint32{core.NumGroups(count, core.GroupWidth), 1, 1})
	e.dev.Barrier(device.BarrierAtomicCounter | device.BarrierStorage)

	e.counter.Add(count)
	e.stats.Emitted += uint64(count)
	return count
}

func (e *Engine) simParams(dt float32) core.SimParams {
	s := e.cfg.Simulation
	var flags uint32
	if s.Scattering.Enabled {
		flags |= core.FlagScattering
	}
	if s.VectorField.Enabled {
		flags |= core.FlagVectorField
	}
	if s.CurlNoise.Enabled {
		flags |= core.FlagCurlNoise
	}
	if s.VelocityControl.Enabled {
		flags |= core.FlagVelocityControl
	}
	return core.SimParams{
		Dt:           dt,
		Time:         e.time,
		Capacity:     e.capacity,
		Layout:       e.cfg.Layout,
		ReadIndex:    e.counter.ReadIndex(),
		WriteIndex:   e.counter.WriteIndex(),
		RandCount:    e.random.Count(),
		RandOffset:   (e.random.Offset() + e.random.Count()/2) % e.random.Count(),
		Flags:        flags,
		Bounding:     s.BoundingVolume,
		BoundingSize: s.BoundingSize,
		Scattering:   s.Scattering.Factor,
		VectorField:  s.VectorField.Factor,
		CurlNoise:    s.CurlNoise.Factor,
		CurlScale:    s.CurlNoiseScale,
		Velocity:     s.VelocityControl.Factor,
		FieldDims:    e.field.dims,
		FieldOrigin:  e.field.origin,
		FieldExtent:  e.field.extent,
	}
}

// Simulate advances every live particle by dt scaled by the time step
// factor and compacts the survivors into the WRITE buffer. The surviving
// count is read back once.
func (e *Engine) Simulate(dt float32) {
	e.simulated = false
	if e.counter.Alive() == 0 {
		e.stats.SkippedFrames++
		return
	}

	dt *= e.cfg.Simulation.TimeStepFactor
	e.time += dt
	params := e.simParams(dt).Bytes()
	bindings := []device.Binding{
		e.store.KernelBinding(RoleRead, 1, device.AccessRead),
		e.store.KernelBinding(RoleWrite, 2, device.AccessReadWrite),
		e.counter.Bind(3, device.AccessAtomic),
		e.random.Bind(4),
		{Slot: 5, Buffer: e.field.buf, Size: e.field.buf.Size(), Access: device.AccessRead},
	}

	if e.cfg.DirectDispatch {
		e.dev.Dispatch(e.k.simulate, params, bindings, [3]uint32{core.NumGroups(e.capacity, core.GroupWidth), 1, 1})
	} else {
		args := core.ArgsParams{CounterIndex: e.counter.ReadIndex(), GroupWidth: core.GroupWidth}
		e.dev.Dispatch(e.k.simArgs, args.Bytes(), []device.Binding{
			e.counter.Bind(1, device.AccessRead),
			e.args.Bind(2),
		}, [3]uint32{1, 1, 1})
		e.dev.Barrier(device.BarrierCommand)
		e.dev.DispatchIndirect(e.k.simulate, params, bindings, e.args.Buffer(), core.DispatchArgsOffset)
	}
	e.dev.Barrier(device.BarrierStorage | device.BarrierAtomicCounter | device.BarrierBufferUpdate)
	e.simulated = true
	e.latest = RoleWrite
	e.stats.SimulatedFrames++

	data, err := e.dev.ReadBuffer(e.counter.Buffer(), e.counter.WriteOffset(), core.AliveCounterWordSize)
	if err != nil {
		e.stats.ReadbackErrors++
		e.log.Errorf("[%s] alive count readback failed, keeping %d: %v", e.label, e.counter.Alive(), err)
		return
	}
	n := binary.LittleEndian.Uint32(data)
	if !e.counter.Set(n) {
		e.stats.CounterClamps++
		e.log.Errorf("[%s] alive count %d exceeds capacity %d", e.label, n, e.capacity)
	}
}

// Sort orders the render indices of the newest particle data by view
// depth, largest key first. Inside Step that is the WRITE buffer, after
// PostProcess it is READ, so sorting again with the same view is stable.
func (e *Engine) Sort(view mgl32.Mat4) {
	e.sorted = false
	alive := e.counter.Alive()
	if !e.cfg.Sorting || !e.simulated || alive == 0 || e.sort == nil {
		return
	}

	m := core.NextPow2(alive)
	camPos, viewDir := core.SortBasis(view)
	p := core.SortParams{
		Count:        m,
		Alive:        alive,
		Layout:       e.cfg.Layout,
		Capacity:     e.capacity,
		RenderOffset: e.sort.MaxCount(),
		CameraPos:    camPos,
		ViewDir:      viewDir,
	}
	keys := device.Binding{Slot: 1, Buffer: e.sort.Keys(), Size: e.sort.Keys().Size(), Access: device.AccessReadWrite}
	indices := device.Binding{Slot: 2, Buffer: e.sort.Indices(), Size: e.sort.Indices().Size(), Access: device.AccessReadWrite}
	dispatches := uint64(0)

	e.dev.Dispatch(e.k.sortReset, p.Bytes(), []device.Binding{keys, indices}, [3]uint32{core.NumGroups(m, core.GroupWidth), 1, 1})
	e.dev.Barrier(device.BarrierStorage)

	keys.Slot = 2
	e.dev.Dispatch(e.k.sortKeys, p.Bytes(), []device.Binding{
		e.store.KernelBinding(e.latest, 1, device.AccessRead),
		keys,
	}, [3]uint32{core.NumGroups(alive, core.GroupWidth), 1, 1})
	e.dev.Barrier(device.BarrierStorage)
	dispatches += 2

	keys.Slot = 1
	steps := core.NumGroups(m/2, core.GroupWidth)
	for step := uint32(0); step < core.Log2(m); step++ {
		for stage := uint32(0); stage <= step; stage++ {
			p.BlockWidth = 1 << (step - stage + 1)
			p.MaxBlockWidth = 1 << (step + 1)
			e.dev.Dispatch(e.k.sortStep, p.Bytes(), []device.Binding{keys, indices}, [3]uint32{steps, 1, 1})
			e.dev.Barrier(device.BarrierStorage)
			dispatches++
		}
	}

	indices.Slot = 1
	e.dev.Dispatch(e.k.sortFinal, p.Bytes(), []device.Binding{indices}, [3]uint32{core.NumGroups(alive, core.GroupWidth), 1, 1})
	dispatches++

	e.sorted = true
	e.stats.SortedFrames++
	e.stats.SortDispatches += dispatches
}

// PostProcess hands the frame to the renderer: it retires the simulated
// buffers, refreshes the draw instance count and submits.
func (e *Engine) PostProcess() {
	if e.simulated {
		e.counter.SwapRoles()
		e.dev.ClearBuffer(e.counter.Buffer(), e.counter.WriteOffset(), core.AliveCounterWordSize)
		if e.cfg.Sorting {
			e.store.Flip()
		} else {
			e.store.Swap()
		}
		e.latest = RoleRead
	}
	e.copyInstanceCount()
	if e.sorted {
		e.dev.Barrier(device.BarrierStorage | device.BarrierCommand | device.BarrierVertexAttrib | device.BarrierBufferUpdate)
	}
	if err := e.dev.Submit(); err != nil {
		e.log.Errorf("[%s] submit failed: %v", e.label, err)
	}
}

// copyInstanceCount refreshes the draw instance count from the read counter.
func (e *Engine) copyInstanceCount() {
	e.dev.CopyBuffer(e.counter.Buffer(), e.counter.ReadOffset(), e.args.Buffer(), core.InstanceCountOffset, core.AliveCounterWordSize)
}

// Close releases every device resource. The device itself stays open.
func (e *Engine) Close() {
	for _, k := range []device.Kernel{e.k.emit, e.k.simArgs, e.k.simulate, e.k.sortReset, e.k.sortKeys, e.k.sortStep, e.k.sortFinal} {
		if k != nil {
			k.Release()
		}
	}
	e.k = kernels{}
	e.store.Release()
	e.random.Release()
	e.counter.Release()
	e.args.Release()
	if e.sort != nil {
		e.sort.Release()
		e.sort = nil
	}
	if e.field.buf != nil {
		e.field.buf.Release()
		e.field.buf = nil
	}
}
