package soft

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Invocation runs one kernel invocation for global id gid.
type Invocation func(gid uint32)

// KernelImpl prepares a dispatch and returns the per-invocation body.
type KernelImpl func(ctx *Context) Invocation

var kernels = map[string]KernelImpl{}

func registerKernel(name string, impl KernelImpl) { kernels[name] = impl }

func lookupKernel(name string) (KernelImpl, bool) {
	impl, ok := kernels[name]
	return impl, ok
}

// Context is the state shared by all invocations of one dispatch.
type Context struct {
	Params     []byte
	GroupWidth uint32
	Groups     [3]uint32
	views      map[uint32]View
}

// View returns the bound range at slot. An unbound slot yields an empty view.
func (c *Context) View(slot uint32) View { return c.views[slot] }

// View is a word-addressed window onto a bound buffer range.
type View struct {
	words []uint32
}

func (v View) Len() uint32 { return uint32(len(v.words)) }

func (v View) U32(i uint32) uint32       { return v.words[i] }
func (v View) SetU32(i uint32, x uint32) { v.words[i] = x }

func (v View) F32(i uint32) float32       { return math32.Float32frombits(v.words[i]) }
func (v View) SetF32(i uint32, x float32) { v.words[i] = math32.Float32bits(x) }

// Vec4 reads the i-th vec4 (word index 4*i).
func (v View) Vec4(i uint32) mgl32.Vec4 {
	w := v.words[i*4 : i*4+4]
	return mgl32.Vec4{
		math32.Float32frombits(w[0]),
		math32.Float32frombits(w[1]),
		math32.Float32frombits(w[2]),
		math32.Float32frombits(w[3]),
	}
}

func (v View) SetVec4(i uint32, x mgl32.Vec4) {
	w := v.words[i*4 : i*4+4]
	for c := range 4 {
		w[c] = math32.Float32bits(x[c])
	}
}

// AtomicAdd adds delta to word i and returns the previous value.
func (v View) AtomicAdd(i uint32, delta uint32) uint32 {
	return atomic.AddUint32(&v.words[i], delta) - delta
}

func (v View) AtomicLoad(i uint32) uint32 {
	return atomic.LoadUint32(&v.words[i])
}

func putBytes(words []uint32, offset uint64, data []byte) {
	for i := 0; i < len(data); i += 4 {
		var w [4]byte
		copy(w[:], data[i:])
		words[(offset+uint64(i))/4] = binary.LittleEndian.Uint32(w[:])
	}
}

func getBytes(words []uint32, offset, size uint64) []byte {
	out := make([]byte, size)
	for i := uint64(0); i < size; i += 4 {
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], words[(offset+i)/4])
		copy(out[i:], w[:])
	}
	return out
}
