package engine

import (
	"fmt"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
)

// AliveCounter holds the read and write particle counters in one device
// buffer, plus the host estimate of the read count.
type AliveCounter struct {
	buf      device.Buffer
	read     uint32
	alive    uint32
	capacity uint32
}

func (c *AliveCounter) Init(dev device.Device, capacity uint32, label string) error {
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: label + "-counters",
		Size:  core.AliveCounterSize,
		Usage: device.UsageStorage | device.UsageCopySrc | device.UsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create alive counter buffer: %w", err)
	}
	dev.WriteBuffer(buf, 0, make([]byte, core.AliveCounterSize))
	c.buf = buf
	c.read = 0
	c.alive = 0
	c.capacity = capacity
	return nil
}

func (c *AliveCounter) Buffer() device.Buffer { return c.buf }

func (c *AliveCounter) ReadIndex() uint32  { return c.read }
func (c *AliveCounter) WriteIndex() uint32 { return 1 - c.read }

func (c *AliveCounter) ReadOffset() uint64  { return uint64(c.ReadIndex()) * core.AliveCounterWordSize }
func (c *AliveCounter) WriteOffset() uint64 { return uint64(c.WriteIndex()) * core.AliveCounterWordSize }

// Alive is the host estimate of live particles.
func (c *AliveCounter) Alive() uint32 { return c.alive }

// Free is the number of slots emission may still fill.
func (c *AliveCounter) Free() uint32 { return c.capacity - c.alive }

func (c *AliveCounter) Add(n uint32) { c.alive = min(c.alive+n, c.capacity) }

// Set stores a read-back count. It reports false when the value exceeded
// the capacity and had to be clamped.
func (c *AliveCounter) Set(n uint32) bool {
	if n > c.capacity {
		c.alive = c.capacity
		return false
	}
	c.alive = n
	return true
}

// SwapRoles exchanges the read and write words.
func (c *AliveCounter) SwapRoles() { c.read = 1 - c.read }

func (c *AliveCounter) Bind(slot uint32, access device.Access) device.Binding {
	return device.Binding{Slot: slot, Buffer: c.buf, Size: core.AliveCounterSize, Access: access}
}

func (c *AliveCounter) Release() {
	if c.buf != nil {
		c.buf.Release()
		c.buf = nil
	}
}
