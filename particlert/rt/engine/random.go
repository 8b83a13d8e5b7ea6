package engine

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gekko3d/particles/particlert/rt/device"
)

// RandomSupply is a device array of uniform floats in [0,1) refreshed from
// a seeded host generator.
type RandomSupply struct {
	dev    device.Device
	buf    device.Buffer
	rng    *rand.Rand
	data   []byte
	count  uint32
	offset uint32
}

func (r *RandomSupply) Init(dev device.Device, count uint32, seed uint64, label string) error {
	if count == 0 {
		count = 4
	}
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: label + "-random",
		Size:  uint64(count) * 4,
		Usage: device.UsageStorage | device.UsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create random buffer: %w", err)
	}
	r.dev = dev
	r.buf = buf
	r.count = count
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r.data = make([]byte, count*4)
	return nil
}

// Generate refills the array and uploads it without waiting for kernels
// still reading the previous contents.
func (r *RandomSupply) Generate() {
	for i := uint32(0); i < r.count; i++ {
		binary.LittleEndian.PutUint32(r.data[i*4:], math.Float32bits(r.rng.Float32()))
	}
	r.offset = r.rng.Uint32N(r.count)
	r.dev.WriteBuffer(r.buf, 0, r.data)
}

func (r *RandomSupply) Bind(slot uint32) device.Binding {
	return device.Binding{Slot: slot, Buffer: r.buf, Size: r.buf.Size(), Access: device.AccessRead}
}

func (r *RandomSupply) Count() uint32 { return r.count }

// Offset is this frame's start position in the array.
func (r *RandomSupply) Offset() uint32 { return r.offset }

func (r *RandomSupply) Release() {
	if r.buf != nil {
		r.buf.Release()
		r.buf = nil
	}
}
