package engine

import (
	"fmt"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
)

// SortBuffers holds the depth keys and the index array. The first half of
// the index array is the sort working set, the second half the render order.
type SortBuffers struct {
	keys    device.Buffer
	indices device.Buffer
	max     uint32
}

func (s *SortBuffers) Init(dev device.Device, capacity uint32, label string) error {
	s.max = core.NextPow2(capacity)
	var err error
	s.keys, err = dev.CreateBuffer(device.BufferDesc{
		Label: label + "-sort-keys",
		Size:  uint64(s.max) * 4,
		Usage: device.UsageStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create sort key buffer: %w", err)
	}
	s.indices, err = dev.CreateBuffer(device.BufferDesc{
		Label: label + "-sort-indices",
		Size:  uint64(s.max) * 2 * 4,
		Usage: device.UsageStorage | device.UsageVertex,
	})
	if err != nil {
		s.keys.Release()
		return fmt.Errorf("failed to create sort index buffer: %w", err)
	}
	return nil
}

// MaxCount is nextPow2(capacity), the largest sort size.
func (s *SortBuffers) MaxCount() uint32 { return s.max }

// RenderOffset is the byte offset of the render-order indices.
func (s *SortBuffers) RenderOffset() uint64 { return uint64(s.max) * 4 }

func (s *SortBuffers) Keys() device.Buffer    { return s.keys }
func (s *SortBuffers) Indices() device.Buffer { return s.indices }

func (s *SortBuffers) Release() {
	if s.keys != nil {
		s.keys.Release()
		s.keys = nil
	}
	if s.indices != nil {
		s.indices.Release()
		s.indices = nil
	}
}
