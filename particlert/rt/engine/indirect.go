package engine

import (
	"fmt"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
)

// IndirectArgs is the device record feeding the indirect simulation
// dispatch and the renderer's indirect draw.
type IndirectArgs struct {
	dev device.Device
	buf device.Buffer
}

func (a *IndirectArgs) Init(dev device.Device, vertexCount uint32, label string) error {
	buf, err := dev.CreateBuffer(device.BufferDesc{
		Label: label + "-args",
		Size:  core.IndirectArgsSize,
		Usage: device.UsageStorage | device.UsageIndirect | device.UsageCopySrc | device.UsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("failed to create indirect args buffer: %w", err)
	}
	a.dev = dev
	a.buf = buf
	dev.WriteBuffer(buf, 0, core.IndirectArgs{DispatchY: 1, DispatchZ: 1, VertexCount: vertexCount}.Bytes())
	return nil
}

func (a *IndirectArgs) Buffer() device.Buffer { return a.buf }

func (a *IndirectArgs) Bind(slot uint32) device.Binding {
	return device.Binding{Slot: slot, Buffer: a.buf, Size: core.IndirectArgsSize, Access: device.AccessReadWrite}
}

// Read fetches the record. Blocks on the device.
func (a *IndirectArgs) Read() (core.IndirectArgs, error) {
	data, err := a.dev.ReadBuffer(a.buf, 0, core.IndirectArgsSize)
	if err != nil {
		return core.IndirectArgs{}, err
	}
	return core.DecodeIndirectArgs(data), nil
}

func (a *IndirectArgs) Release() {
	if a.buf != nil {
		a.buf.Release()
		a.buf = nil
	}
}
