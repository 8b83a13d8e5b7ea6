// Package device is the narrow command surface the particle engine records
// its frames against: buffers, kernels, ordered dispatches, barriers, copies
// and a single blocking readback.
package device

import "errors"

var (
	// ErrNotAvailable is returned when a device cannot be created on this host.
	ErrNotAvailable = errors.New("device: not available")

	// ErrUnknownKernel is returned when a kernel name has no implementation.
	ErrUnknownKernel = errors.New("device: unknown kernel")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("device: closed")
)

type BufferUsage uint32

const (
	UsageStorage BufferUsage = 1 << iota
	UsageUniform
	UsageIndirect
	UsageVertex
	UsageCopySrc
	UsageCopyDst
)

type BufferDesc struct {
	Label string
	Size  uint64
	Usage BufferUsage
}

type Buffer interface {
	Label() string
	Size() uint64
	Release()
}

// Access is how a kernel touches a bound range.
type Access uint8

const (
	AccessRead Access = iota
	AccessReadWrite
	AccessAtomic
)

// Binding attaches a buffer range to a kernel slot. Slot 0 is reserved for
// the per-dispatch parameter block. Size 0 means "to the end of the buffer".
type Binding struct {
	Slot   uint32
	Buffer Buffer
	Offset uint64
	Size   uint64
	Access Access
}

// Range returns the effective byte size of the binding.
func (b Binding) Range() uint64 {
	if b.Size == 0 && b.Buffer != nil {
		return b.Buffer.Size() - b.Offset
	}
	return b.Size
}

type KernelDesc struct {
	Name       string
	Source     string // WGSL; ignored by devices that implement kernels natively
	EntryPoint string
	GroupWidth uint32
}

type Kernel interface {
	Name() string
	Release()
}

// Barrier is a set of memory-visibility classes. A dispatch that writes a
// buffer leaves it unsynchronized for every class until a barrier naming
// that class is issued.
type Barrier uint32

const (
	BarrierStorage       Barrier = 1 << iota // storage reads/writes by kernels
	BarrierAtomicCounter                     // atomic counter access
	BarrierCommand                           // indirect dispatch/draw argument fetch
	BarrierBufferUpdate                      // copies, clears, host reads and writes
	BarrierUniform                           // uniform reads
	BarrierVertexAttrib                      // vertex fetch by a renderer

	BarrierAll = BarrierStorage | BarrierAtomicCounter | BarrierCommand |
		BarrierBufferUpdate | BarrierUniform | BarrierVertexAttrib
)

// Device records and executes the commands of a frame in program order.
// It is used from a single goroutine.
type Device interface {
	Name() string

	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateKernel(desc KernelDesc) (Kernel, error)

	// WriteBuffer uploads host data. It does not wait for earlier reads of
	// the previous contents.
	WriteBuffer(buf Buffer, offset uint64, data []byte)
	ClearBuffer(buf Buffer, offset, size uint64)
	CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64)

	Dispatch(k Kernel, params []byte, bindings []Binding, groups [3]uint32)
	// DispatchIndirect reads the workgroup counts from three u32 at argsOffset.
	DispatchIndirect(k Kernel, params []byte, bindings []Binding, args Buffer, argsOffset uint64)
	Barrier(bits Barrier)

	// ReadBuffer blocks until every recorded command has executed.
	ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error)
	Submit() error
	Close()
}

// Stats counts recorded commands since the device was created.
type Stats struct {
	Dispatches         int
	IndirectDispatches int
	Barriers           int
	Copies             int
	Clears             int
	Writes             int
	Readbacks          int
	Submits            int
	KernelDispatches   map[string]int
}

// StatsReporter is implemented by devices that count commands.
type StatsReporter interface {
	Stats() Stats
}
