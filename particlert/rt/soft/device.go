// Package soft is a reference implementation of device.Device that runs the
// particle kernels as Go functions over word-addressed buffers. Dispatches
// execute synchronously, spread across goroutines, and every command is
// checked against the barriers issued before it.
package soft

import (
	"fmt"
	"runtime"

	"github.com/gekko3d/particles/particlert/rt/device"
	"golang.org/x/sync/errgroup"
)

func init() {
	device.Register(device.NameSoft, func() (device.Device, error) {
		return New(), nil
	})
}

type Buffer struct {
	label string
	size  uint64
	words []uint32
}

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Size() uint64  { return b.size }
func (b *Buffer) Release()      { b.words = nil }

type Kernel struct {
	name       string
	groupWidth uint32
	impl       KernelImpl
}

func (k *Kernel) Name() string { return k.name }
func (k *Kernel) Release()     {}

// Hazard records a command that touched a buffer written by an earlier
// dispatch without an intervening barrier of the matching class.
type Hazard struct {
	Command string
	Buffer  string
	Missing device.Barrier
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s: %s needs barrier %#x", h.Command, h.Buffer, uint32(h.Missing))
}

type Device struct {
	closed   bool
	pending  map[*Buffer]device.Barrier
	hazards  []Hazard
	stats    device.Stats
	maxProcs int
}

func New() *Device {
	return &Device{
		pending:  make(map[*Buffer]device.Barrier),
		stats:    device.Stats{KernelDispatches: make(map[string]int)},
		maxProcs: runtime.GOMAXPROCS(0),
	}
}

func (d *Device) Name() string { return device.NameSoft }

func (d *Device) CreateBuffer(desc device.BufferDesc) (device.Buffer, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	if desc.Size == 0 {
		return nil, fmt.Errorf("buffer %q: zero size", desc.Label)
	}
	words := (desc.Size + 3) / 4
	return &Buffer{label: desc.Label, size: words * 4, words: make([]uint32, words)}, nil
}

func (d *Device) CreateKernel(desc device.KernelDesc) (device.Kernel, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	impl, ok := lookupKernel(desc.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownKernel, desc.Name)
	}
	gw := desc.GroupWidth
	if gw == 0 {
		gw = 1
	}
	return &Kernel{name: desc.Name, groupWidth: gw, impl: impl}, nil
}

func asBuffer(b device.Buffer) *Buffer {
	sb, ok := b.(*Buffer)
	if !ok {
		panic(fmt.Sprintf("soft: foreign buffer %T", b))
	}
	return sb
}

// touch checks an access of class c against the pending barrier bits of b.
func (d *Device) touch(cmd string, b *Buffer, c device.Barrier) {
	if missing := d.pending[b] & c; missing != 0 {
		d.hazards = append(d.hazards, Hazard{Command: cmd, Buffer: b.label, Missing: missing})
	}
}

func (d *Device) WriteBuffer(buf device.Buffer, offset uint64, data []byte) {
	b := asBuffer(buf)
	d.touch("write", b, device.BarrierBufferUpdate)
	d.stats.Writes++
	putBytes(b.words, offset, data)
}

func (d *Device) ClearBuffer(buf device.Buffer, offset, size uint64) {
	b := asBuffer(buf)
	d.touch("clear", b, device.BarrierBufferUpdate)
	d.stats.Clears++
	if size == 0 {
		size = b.size - offset
	}
	clear(b.words[offset/4 : (offset+size)/4])
}

func (d *Device) CopyBuffer(src device.Buffer, srcOffset uint64, dst device.Buffer, dstOffset uint64, size uint64) {
	s, t := asBuffer(src), asBuffer(dst)
	d.touch("copy", s, device.BarrierBufferUpdate)
	d.touch("copy", t, device.BarrierBufferUpdate)
	d.stats.Copies++
	copy(t.words[dstOffset/4:(dstOffset+size)/4], s.words[srcOffset/4:(srcOffset+size)/4])
}

func (d *Device) Barrier(bits device.Barrier) {
	d.stats.Barriers++
	for b, p := range d.pending {
		if p &^= bits; p == 0 {
			delete(d.pending, b)
		} else {
			d.pending[b] = p
		}
	}
}

func (d *Device) Dispatch(k device.Kernel, params []byte, bindings []device.Binding, groups [3]uint32) {
	d.stats.Dispatches++
	d.run(k.(*Kernel), params, bindings, groups)
}

func (d *Device) DispatchIndirect(k device.Kernel, params []byte, bindings []device.Binding, args device.Buffer, argsOffset uint64) {
	a := asBuffer(args)
	d.touch(k.Name()+" args", a, device.BarrierCommand)
	d.stats.IndirectDispatches++
	w := argsOffset / 4
	d.run(k.(*Kernel), params, bindings, [3]uint32{a.words[w], a.words[w+1], a.words[w+2]})
}

func accessClass(a device.Access) device.Barrier {
	if a == device.AccessAtomic {
		return device.BarrierAtomicCounter
	}
	return device.BarrierStorage
}

func (d *Device) run(k *Kernel, params []byte, bindings []device.Binding, groups [3]uint32) {
	d.stats.KernelDispatches[k.name]++

	ctx := &Context{Params: params, GroupWidth: k.groupWidth, Groups: groups, views: make(map[uint32]View, len(bindings))}
	for _, bd := range bindings {
		b := asBuffer(bd.Buffer)
		d.touch(k.name, b, accessClass(bd.Access))
		lo := bd.Offset / 4
		ctx.views[bd.Slot] = View{words: b.words[lo : lo+bd.Range()/4]}
	}

	total := groups[0] * groups[1] * groups[2]
	if total > 0 {
		invoke := k.impl(ctx)
		d.execute(total, k.groupWidth, invoke)
	}

	for _, bd := range bindings {
		if bd.Access != device.AccessRead {
			d.pending[asBuffer(bd.Buffer)] = device.BarrierAll
		}
	}
}

// execute runs every invocation of a dispatch, splitting workgroups into
// one contiguous chunk per worker.
func (d *Device) execute(numGroups, groupWidth uint32, invoke Invocation) {
	workers := uint32(d.maxProcs)
	if numGroups < workers {
		workers = numGroups
	}
	if workers <= 1 {
		for gid := uint32(0); gid < numGroups*groupWidth; gid++ {
			invoke(gid)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(int(workers))
	per := (numGroups + workers - 1) / workers
	for start := uint32(0); start < numGroups; start += per {
		end := min(start+per, numGroups)
		g.Go(func() error {
			for gid := start * groupWidth; gid < end*groupWidth; gid++ {
				invoke(gid)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Device) ReadBuffer(buf device.Buffer, offset, size uint64) ([]byte, error) {
	if d.closed {
		return nil, device.ErrClosed
	}
	b := asBuffer(buf)
	if offset+size > b.size {
		return nil, fmt.Errorf("read %s: range %d+%d exceeds size %d", b.label, offset, size, b.size)
	}
	d.touch("read", b, device.BarrierBufferUpdate)
	d.stats.Readbacks++
	return getBytes(b.words, offset, size), nil
}

func (d *Device) Submit() error {
	if d.closed {
		return device.ErrClosed
	}
	d.stats.Submits++
	return nil
}

func (d *Device) Close() {
	d.closed = true
}

// Hazards returns the barrier violations recorded so far.
func (d *Device) Hazards() []Hazard {
	return append([]Hazard(nil), d.hazards...)
}

// ResetHazards clears recorded hazards and pending barrier state.
func (d *Device) ResetHazards() {
	d.hazards = nil
	clear(d.pending)
}

func (d *Device) Stats() device.Stats {
	s := d.stats
	s.KernelDispatches = make(map[string]int, len(d.stats.KernelDispatches))
	for k, v := range d.stats.KernelDispatches {
		s.KernelDispatches[k] = v
	}
	return s
}
