package engine

import (
	"fmt"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
)

// Role names one of the two store buffers.
type Role int

const (
	RoleRead Role = iota
	RoleWrite
)

func (r Role) String() string {
	if r == RoleWrite {
		return "write"
	}
	return "read"
}

// VertexAttribute locates one attribute slot inside a store buffer.
type VertexAttribute struct {
	Attr   uint32
	Offset uint64
	Stride uint64
}

// VertexLayout describes how a renderer fetches particles from the READ buffer.
type VertexLayout struct {
	Layout     core.Layout
	Capacity   uint32
	Stride     uint64
	Attributes []VertexAttribute
}

// ParticleStore is the double-buffered particle attribute storage.
// Both buffers have the same shape for the lifetime of the store.
type ParticleStore struct {
	dev      device.Device
	buffers  [2]device.Buffer
	read     int
	capacity uint32
	slots    uint32
	baseSlot uint32
	layout   core.Layout
}

// Setup allocates both buffers. baseBindingSlot is the first slot used by Bind.
func (s *ParticleStore) Setup(dev device.Device, capacity, baseBindingSlot, numAttributeSlots uint32, layout core.Layout, label string) error {
	s.dev = dev
	s.capacity = capacity
	s.slots = numAttributeSlots
	s.baseSlot = baseBindingSlot
	s.layout = layout
	s.read = 0

	for i := range s.buffers {
		buf, err := dev.CreateBuffer(device.BufferDesc{
			Label: fmt.Sprintf("%s-store%d", label, i),
			Size:  s.BufferSize(),
			Usage: device.UsageStorage | device.UsageVertex | device.UsageCopySrc | device.UsageCopyDst,
		})
		if err != nil {
			s.Release()
			return fmt.Errorf("failed to create particle store buffer: %w", err)
		}
		s.buffers[i] = buf
	}
	return nil
}

func (s *ParticleStore) Capacity() uint32       { return s.capacity }
func (s *ParticleStore) Layout() core.Layout    { return s.layout }
func (s *ParticleStore) AttributeSlots() uint32 { return s.slots }

// BufferSize is the byte size of one store buffer.
func (s *ParticleStore) BufferSize() uint64 {
	return uint64(s.capacity) * uint64(s.slots) * core.AttributeSlotSize
}

func (s *ParticleStore) index(role Role) int {
	if role == RoleWrite {
		return 1 - s.read
	}
	return s.read
}

func (s *ParticleStore) Buffer(role Role) device.Buffer { return s.buffers[s.index(role)] }

// Bind returns the read-only attribute ranges of a role. SoA yields one
// range per attribute in consecutive slots, AoS one range for the buffer.
func (s *ParticleStore) Bind(role Role) []device.Binding {
	buf := s.Buffer(role)
	if s.layout == core.LayoutAoS {
		return []device.Binding{{Slot: s.baseSlot, Buffer: buf, Size: s.BufferSize(), Access: device.AccessRead}}
	}
	attrSize := uint64(s.capacity) * core.AttributeSlotSize
	out := make([]device.Binding, s.slots)
	for a := uint32(0); a < s.slots; a++ {
		out[a] = device.Binding{
			Slot:   s.baseSlot + a,
			Buffer: buf,
			Offset: uint64(a) * attrSize,
			Size:   attrSize,
			Access: device.AccessRead,
		}
	}
	return out
}

// KernelBinding returns the whole buffer of a role at slot. Kernels index
// it with core.AttrIndex.
func (s *ParticleStore) KernelBinding(role Role, slot uint32, access device.Access) device.Binding {
	return device.Binding{Slot: slot, Buffer: s.Buffer(role), Size: s.BufferSize(), Access: access}
}

// Swap copies the WRITE buffer into READ on the device. The READ identity
// stays the same.
func (s *ParticleStore) Swap() {
	s.dev.CopyBuffer(s.Buffer(RoleWrite), 0, s.Buffer(RoleRead), 0, s.BufferSize())
}

// Flip exchanges the READ and WRITE roles without moving data.
func (s *ParticleStore) Flip() { s.read = 1 - s.read }

func (s *ParticleStore) VertexLayout() VertexLayout {
	vl := VertexLayout{Layout: s.layout, Capacity: s.capacity}
	if s.layout == core.LayoutAoS {
		vl.Stride = uint64(s.slots) * core.AttributeSlotSize
	} else {
		vl.Stride = core.AttributeSlotSize
	}
	for a := uint32(0); a < s.slots; a++ {
		off := uint64(a) * core.AttributeSlotSize
		if s.layout == core.LayoutSoA {
			off = uint64(a) * uint64(s.capacity) * core.AttributeSlotSize
		}
		vl.Attributes = append(vl.Attributes, VertexAttribute{Attr: a, Offset: off, Stride: vl.Stride})
	}
	return vl
}

func (s *ParticleStore) Release() {
	for i, b := range s.buffers {
		if b != nil {
			b.Release()
			s.buffers[i] = nil
		}
	}
}
