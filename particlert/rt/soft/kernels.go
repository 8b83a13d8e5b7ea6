package soft

import (
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// Binding slots match the @binding indices of the WGSL kernels.
// Slot 0 is always the parameter block.

func init() {
	registerKernel(core.KernelEmit, emitKernel)
	registerKernel(core.KernelSimArgs, simArgsKernel)
	registerKernel(core.KernelSimulate, simulateKernel)
	registerKernel(core.KernelSortReset, sortResetKernel)
	registerKernel(core.KernelSortKeys, sortKeysKernel)
	registerKernel(core.KernelSortStep, sortStepKernel)
	registerKernel(core.KernelSortFinal, sortFinalKernel)
}

func readParticle(v View, layout core.Layout, capacity, i uint32) core.Particle {
	var s [core.NumAttributeSlots]mgl32.Vec4
	for a := uint32(0); a < core.NumAttributeSlots; a++ {
		s[a] = v.Vec4(core.AttrIndex(layout, capacity, core.NumAttributeSlots, a, i))
	}
	return core.ParticleFromSlots(s)
}

func writeParticle(v View, layout core.Layout, capacity, i uint32, pt core.Particle) {
	s := pt.Slots()
	for a := uint32(0); a < core.NumAttributeSlots; a++ {
		v.SetVec4(core.AttrIndex(layout, capacity, core.NumAttributeSlots, a, i), s[a])
	}
}

// particle_emit: 1 particles, 2 counters (atomic), 3 random.
func emitKernel(ctx *Context) Invocation {
	p := core.DecodeEmitParams(ctx.Params)
	particles, counters, random := ctx.View(1), ctx.View(2), ctx.View(3)
	return func(gid uint32) {
		if gid >= p.Count {
			return
		}
		slot := counters.AtomicAdd(p.CounterIndex, 1)
		if slot >= p.Capacity {
			return
		}
		r := randoms(random, p.RandCount, p.RandOffset, gid)
		pos, vel := SampleEmitter(p, r)
		writeParticle(particles, p.Layout, p.Capacity, slot, core.Particle{
			Position: pos,
			RestLife: 1,
			Velocity: vel,
			Lifetime: Lifetime(p.MinAge, p.MaxAge, r[3]),
		})
	}
}

// particle_sim_args: 1 counters, 2 indirect args. Single invocation.
func simArgsKernel(ctx *Context) Invocation {
	p := core.DecodeArgsParams(ctx.Params)
	counters, args := ctx.View(1), ctx.View(2)
	return func(gid uint32) {
		if gid != 0 {
			return
		}
		n := counters.U32(p.CounterIndex)
		args.SetU32(0, core.NumGroups(n, p.GroupWidth))
		args.SetU32(1, 1)
		args.SetU32(2, 1)
	}
}

// particle_simulate: 1 src, 2 dst, 3 counters (atomic), 4 random, 5 vector field.
func simulateKernel(ctx *Context) Invocation {
	p := core.DecodeSimParams(ctx.Params)
	src, dst, counters := ctx.View(1), ctx.View(2), ctx.View(3)
	random, field := ctx.View(4), ctx.View(5)
	return func(gid uint32) {
		if gid >= p.Capacity || gid >= counters.AtomicLoad(p.ReadIndex) {
			return
		}
		pt := readParticle(src, p.Layout, p.Capacity, gid)
		pt = Step(pt, p, randoms(random, p.RandCount, p.RandOffset, gid), field)
		if !pt.Alive() {
			return
		}
		slot := counters.AtomicAdd(p.WriteIndex, 1)
		if slot < p.Capacity {
			writeParticle(dst, p.Layout, p.Capacity, slot, pt)
		}
	}
}

// sort_reset: 1 keys, 2 indices.
func sortResetKernel(ctx *Context) Invocation {
	p := core.DecodeSortParams(ctx.Params)
	keys, indices := ctx.View(1), ctx.View(2)
	return func(gid uint32) {
		if gid >= p.Count {
			return
		}
		indices.SetU32(gid, gid)
		keys.SetF32(gid, core.SortKeyFloor)
	}
}

// sort_keys: 1 particles, 2 keys.
func sortKeysKernel(ctx *Context) Invocation {
	p := core.DecodeSortParams(ctx.Params)
	particles, keys := ctx.View(1), ctx.View(2)
	return func(gid uint32) {
		if gid >= p.Alive {
			return
		}
		pos := particles.Vec4(core.AttrIndex(p.Layout, p.Capacity, core.NumAttributeSlots, core.AttrPosition, gid)).Vec3()
		keys.SetF32(gid, core.SortKey(pos, p.CameraPos, p.ViewDir))
	}
}

// sort_step: 1 keys, 2 indices. One compare/swap per invocation.
func sortStepKernel(ctx *Context) Invocation {
	p := core.DecodeSortParams(ctx.Params)
	keys, indices := ctx.View(1), ctx.View(2)
	half := p.BlockWidth / 2
	return func(gid uint32) {
		if half == 0 || gid >= p.Count/2 {
			return
		}
		lo := (gid/half)*p.BlockWidth + gid%half
		hi := lo + half
		desc := lo&p.MaxBlockWidth == 0
		kl, kh := keys.F32(lo), keys.F32(hi)
		if (desc && kl < kh) || (!desc && kl > kh) {
			keys.SetF32(lo, kh)
			keys.SetF32(hi, kl)
			il, ih := indices.U32(lo), indices.U32(hi)
			indices.SetU32(lo, ih)
			indices.SetU32(hi, il)
		}
	}
}

// sort_final: 1 indices. Copies the sorted order into the render range.
func sortFinalKernel(ctx *Context) Invocation {
	p := core.DecodeSortParams(ctx.Params)
	indices := ctx.View(1)
	return func(gid uint32) {
		if gid >= p.Alive {
			return
		}
		indices.SetU32(p.RenderOffset+gid, indices.U32(gid))
	}
}
