package core

import "encoding/binary"

// IndirectArgs mirrors the device-resident argument record.
//
//	dispatch_x, dispatch_y, dispatch_z, _pad: u32   // 0  (compute indirect)
//	vertex_count, instance_count, first_vertex, first_instance: u32 // 16 (draw indirect)
type IndirectArgs struct {
	DispatchX     uint32
	DispatchY     uint32
	DispatchZ     uint32
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

const (
	IndirectArgsSize     = 32
	DispatchArgsOffset   = 0
	DrawArgsOffset       = 16
	InstanceCountOffset  = DrawArgsOffset + 4
	AliveCounterSize     = 16 // two u32 counters, padded
	AliveCounterWordSize = 4
)

func (a IndirectArgs) Bytes() []byte {
	b := make([]byte, IndirectArgsSize)
	binary.LittleEndian.PutUint32(b[0:], a.DispatchX)
	binary.LittleEndian.PutUint32(b[4:], a.DispatchY)
	binary.LittleEndian.PutUint32(b[8:], a.DispatchZ)
	binary.LittleEndian.PutUint32(b[16:], a.VertexCount)
	binary.LittleEndian.PutUint32(b[20:], a.InstanceCount)
	binary.LittleEndian.PutUint32(b[24:], a.FirstVertex)
	binary.LittleEndian.PutUint32(b[28:], a.FirstInstance)
	return b
}

func DecodeIndirectArgs(b []byte) IndirectArgs {
	if len(b) < IndirectArgsSize {
		return IndirectArgs{}
	}
	return IndirectArgs{
		DispatchX:     binary.LittleEndian.Uint32(b[0:]),
		DispatchY:     binary.LittleEndian.Uint32(b[4:]),
		DispatchZ:     binary.LittleEndian.Uint32(b[8:]),
		VertexCount:   binary.LittleEndian.Uint32(b[16:]),
		InstanceCount: binary.LittleEndian.Uint32(b[20:]),
		FirstVertex:   binary.LittleEndian.Uint32(b[24:]),
		FirstInstance: binary.LittleEndian.Uint32(b[28:]),
	}
}
