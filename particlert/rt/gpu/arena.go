package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

const arenaChunkSize = 64 * 1024

type arenaChunk struct {
	buf  *wgpu.Buffer
	data []byte
}

// paramArena packs per-dispatch uniform blocks into 256-byte aligned slots
// of pooled uniform buffers. Slots are uploaded just before submission.
type paramArena struct {
	d      *Device
	chunks []*arenaChunk
	used   int
}

func newParamArena(d *Device) *paramArena {
	return &paramArena{d: d}
}

func alignUp(n, a uint64) uint64 { return (n + a - 1) / a * a }

func (a *paramArena) alloc(params []byte) (*wgpu.Buffer, uint64, uint64) {
	size := alignUp(uint64(max(len(params), 16)), 16)
	if size > arenaChunkSize {
		panic(fmt.Sprintf("params block of %d bytes exceeds arena chunk", size))
	}

	var c *arenaChunk
	if a.used > 0 {
		c = a.chunks[a.used-1]
		if alignUp(uint64(len(c.data)), UniformAlignment)+size > arenaChunkSize {
			c = nil
		}
	}
	if c == nil {
		c = a.nextChunk()
	}

	off := alignUp(uint64(len(c.data)), UniformAlignment)
	c.data = append(c.data, make([]byte, off+size-uint64(len(c.data)))...)
	copy(c.data[off:], params)
	return c.buf, off, size
}

func (a *paramArena) nextChunk() *arenaChunk {
	if a.used < len(a.chunks) {
		c := a.chunks[a.used]
		a.used++
		c.data = c.data[:0]
		return c
	}
	buf, err := a.d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: fmt.Sprintf("DispatchParams%d", len(a.chunks)),
		Size:  arenaChunkSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		panic(fmt.Errorf("failed to create params buffer: %w", err))
	}
	c := &arenaChunk{buf: buf, data: make([]byte, 0, arenaChunkSize)}
	a.chunks = append(a.chunks, c)
	a.used++
	return c
}

func (a *paramArena) upload() {
	for _, c := range a.chunks[:a.used] {
		if len(c.data) > 0 {
			a.d.Queue.WriteBuffer(c.buf, 0, c.data)
		}
	}
}

func (a *paramArena) reset() {
	for _, c := range a.chunks[:a.used] {
		c.data = c.data[:0]
	}
	a.used = 0
}

func (a *paramArena) release() {
	for _, c := range a.chunks {
		c.buf.Release()
	}
	a.chunks = nil
	a.used = 0
}
