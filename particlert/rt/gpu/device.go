package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/gekko3d/particles/particlert/rt/shaders"
)

// UniformAlignment is the dynamic uniform offset alignment every adapter supports.
const UniformAlignment = 256

func init() {
	device.Register(device.NameWGPU, func() (device.Device, error) {
		return NewDevice()
	})
}

type Buffer struct {
	buf   *wgpu.Buffer
	label string
	size  uint64
}

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Size() uint64  { return b.size }

func (b *Buffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// Raw returns the underlying WebGPU buffer of a buffer created by this package.
func Raw(b device.Buffer) *wgpu.Buffer {
	if gb, ok := b.(*Buffer); ok {
		return gb.buf
	}
	return nil
}

type Kernel struct {
	name     string
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.BindGroupLayout
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) Release() {
	if k.pipeline != nil {
		k.pipeline.Release()
		k.pipeline = nil
	}
}

// Device implements device.Device on a WebGPU device. Commands are
// recorded into one encoder and submitted on Submit, ReadBuffer or before a
// host write. Barriers split compute passes.
type Device struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	owned  bool
	closed bool

	encoder    *wgpu.CommandEncoder
	pass       *wgpu.ComputePassEncoder
	arena      *paramArena
	bindGroups []*wgpu.BindGroup

	staging     *wgpu.Buffer
	stagingSize uint64

	stats device.Stats
}

// NewDevice opens a headless device on the default high-performance adapter.
func NewDevice() (*Device, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: request adapter: %v", device.ErrNotAvailable, err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("%w: request device: %v", device.ErrNotAvailable, err)
	}
	d := NewDeviceFrom(dev)
	d.Instance = instance
	d.Adapter = adapter
	d.owned = true
	return d, nil
}

// NewDeviceFrom wraps a device owned by the caller, such as a windowed app.
func NewDeviceFrom(dev *wgpu.Device) *Device {
	d := &Device{
		Device: dev,
		Queue:  dev.GetQueue(),
		stats:  device.Stats{KernelDispatches: make(map[string]int)},
	}
	d.arena = newParamArena(d)
	return d
}

func (d *Device) Name() string { return device.NameWGPU }

func usageFlags(u device.BufferUsage) wgpu.BufferUsage {
	flags := wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	if u&device.UsageStorage != 0 {
		flags |= wgpu.BufferUsageStorage
	}
	if u&device.UsageUniform != 0 {
		flags |= wgpu.BufferUsageUniform
	}
	if u&device.UsageIndirect != 0 {
		flags |= wgpu.BufferUsageIndirect
	}
	if u&device.UsageVertex != 0 {
		flags |= wgpu.BufferUsageVertex
	}
	return flags
}

func (d *Device) CreateBuffer(desc device.BufferDesc) (device.Buffer, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	size := (desc.Size + 3) &^ 3
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: usageFlags(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", desc.Label, err)
	}
	return &Buffer{buf: buf, label: desc.Label, size: size}, nil
}

func (d *Device) CreateKernel(desc device.KernelDesc) (device.Kernel, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	code := desc.Source
	if code == "" {
		var ok bool
		if code, ok = shaders.Kernel(desc.Name); !ok {
			return nil, fmt.Errorf("%w: %s", device.ErrUnknownKernel, desc.Name)
		}
	}
	entry := desc.EntryPoint
	if entry == "" {
		entry = desc.Name
	}

	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s shader module: %w", desc.Name, err)
	}
	defer module.Release()

	pipeline, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: desc.Name,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: entry,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", desc.Name, err)
	}
	return &Kernel{name: desc.Name, pipeline: pipeline, layout: pipeline.GetBindGroupLayout(0)}, nil
}

func (d *Device) ensureEncoder() *wgpu.CommandEncoder {
	if d.encoder == nil {
		enc, err := d.Device.CreateCommandEncoder(nil)
		if err != nil {
			panic(fmt.Errorf("failed to create command encoder: %w", err))
		}
		d.encoder = enc
	}
	return d.encoder
}

func (d *Device) ensurePass() *wgpu.ComputePassEncoder {
	if d.pass == nil {
		d.pass = d.ensureEncoder().BeginComputePass(nil)
	}
	return d.pass
}

func (d *Device) endPass() {
	if d.pass == nil {
		return
	}
	if err := d.pass.End(); err != nil {
		fmt.Printf("ERROR: compute pass End failed: %v\n", err)
	}
	d.pass.Release()
	d.pass = nil
}

// flush submits everything recorded so far.
func (d *Device) flush() error {
	if d.encoder == nil {
		return nil
	}
	d.endPass()
	d.arena.upload()

	cmd, err := d.encoder.Finish(nil)
	d.encoder.Release()
	d.encoder = nil
	if err != nil {
		d.releaseFrame()
		return fmt.Errorf("failed to finish command encoder: %w", err)
	}
	d.Queue.Submit(cmd)
	cmd.Release()
	d.releaseFrame()
	return nil
}

func (d *Device) releaseFrame() {
	for _, bg := range d.bindGroups {
		bg.Release()
	}
	d.bindGroups = d.bindGroups[:0]
	d.arena.reset()
}

func (d *Device) WriteBuffer(buf device.Buffer, offset uint64, data []byte) {
	// Queue writes execute before any unsubmitted commands.
	if err := d.flush(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
	}
	d.stats.Writes++
	d.Queue.WriteBuffer(Raw(buf), offset, data)
}

func (d *Device) ClearBuffer(buf device.Buffer, offset, size uint64) {
	d.endPass()
	d.stats.Clears++
	if size == 0 {
		size = buf.Size() - offset
	}
	d.ensureEncoder().ClearBuffer(Raw(buf), offset, size)
}

func (d *Device) CopyBuffer(src device.Buffer, srcOffset uint64, dst device.Buffer, dstOffset uint64, size uint64) {
	d.endPass()
	d.stats.Copies++
	d.ensureEncoder().CopyBufferToBuffer(Raw(src), srcOffset, Raw(dst), dstOffset, size)
}

// Barrier ends the current compute pass. WebGPU makes storage writes of one
// pass visible to the next, including indirect argument reads.
func (d *Device) Barrier(bits device.Barrier) {
	d.stats.Barriers++
	d.endPass()
}

func (d *Device) bindGroup(k *Kernel, params []byte, bindings []device.Binding) *wgpu.BindGroup {
	entries := make([]wgpu.BindGroupEntry, 0, len(bindings)+1)
	pbuf, poff, psize := d.arena.alloc(params)
	entries = append(entries, wgpu.BindGroupEntry{Binding: 0, Buffer: pbuf, Offset: poff, Size: psize})
	for _, b := range bindings {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: b.Slot,
			Buffer:  Raw(b.Buffer),
			Offset:  b.Offset,
			Size:    b.Range(),
		})
	}
	bg, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   k.name,
		Layout:  k.layout,
		Entries: entries,
	})
	if err != nil {
		panic(fmt.Errorf("failed to create %s bind group: %w", k.name, err))
	}
	d.bindGroups = append(d.bindGroups, bg)
	return bg
}

func (d *Device) Dispatch(k device.Kernel, params []byte, bindings []device.Binding, groups [3]uint32) {
	kk := k.(*Kernel)
	d.stats.Dispatches++
	d.stats.KernelDispatches[kk.name]++
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return
	}
	bg := d.bindGroup(kk, params, bindings)
	pass := d.ensurePass()
	pass.SetPipeline(kk.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(groups[0], groups[1], groups[2])
}

func (d *Device) DispatchIndirect(k device.Kernel, params []byte, bindings []device.Binding, args device.Buffer, argsOffset uint64) {
	kk := k.(*Kernel)
	d.stats.IndirectDispatches++
	d.stats.KernelDispatches[kk.name]++
	bg := d.bindGroup(kk, params, bindings)
	pass := d.ensurePass()
	pass.SetPipeline(kk.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroupsIndirect(Raw(args), argsOffset)
}

func (d *Device) ensureStaging(size uint64) error {
	if d.staging != nil && d.stagingSize >= size {
		return nil
	}
	if d.staging != nil {
		d.staging.Release()
	}
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ReadbackStaging",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create readback buffer: %w", err)
	}
	d.staging = buf
	d.stagingSize = size
	return nil
}

// ReadBuffer submits pending work, copies the range into a mappable buffer
// and blocks until it is mapped.
func (d *Device) ReadBuffer(buf device.Buffer, offset, size uint64) ([]byte, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	size = (size + 3) &^ 3
	if err := d.ensureStaging(size); err != nil {
		return nil, err
	}
	d.stats.Readbacks++

	d.endPass()
	d.ensureEncoder().CopyBufferToBuffer(Raw(buf), offset, d.staging, 0, size)
	if err := d.flush(); err != nil {
		return nil, err
	}

	done := false
	status := wgpu.BufferMapAsyncStatusSuccess
	d.staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
		done = true
	})
	for !done {
		d.Device.Poll(true, nil)
	}
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map readback buffer: status %v", status)
	}

	out := make([]byte, size)
	copy(out, d.staging.GetMappedRange(0, uint(size)))
	d.staging.Unmap()
	return out, nil
}

func (d *Device) Submit() error {
	if d.closed {
		return device.ErrClosed
	}
	d.stats.Submits++
	return d.flush()
}

func (d *Device) Close() {
	if d.closed {
		return
	}
	if err := d.flush(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
	}
	d.closed = true
	d.arena.release()
	if d.staging != nil {
		d.staging.Release()
		d.staging = nil
	}
	if d.owned {
		d.Queue.Release()
		d.Device.Release()
		d.Adapter.Release()
		d.Instance.Release()
	}
}

func (d *Device) Stats() device.Stats {
	s := d.stats
	s.KernelDispatches = make(map[string]int, len(d.stats.KernelDispatches))
	for k, v := range d.stats.KernelDispatches {
		s.KernelDispatches[k] = v
	}
	return s
}
