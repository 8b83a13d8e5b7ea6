package soft

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// randoms returns the four random values of invocation gid.
func randoms(v View, count, offset, gid uint32) [4]float32 {
	var r [4]float32
	if count == 0 || v.Len() == 0 {
		return r
	}
	for k := uint32(0); k < 4; k++ {
		r[k] = v.F32((offset + gid*4 + k) % count)
	}
	return r
}

// orthoBasis returns two unit vectors perpendicular to n and each other.
func orthoBasis(n mgl32.Vec3) (t, b mgl32.Vec3) {
	a := mgl32.Vec3{0, 1, 0}
	if math32.Abs(n.Y()) > 0.99 {
		a = mgl32.Vec3{1, 0, 0}
	}
	t = a.Cross(n).Normalize()
	b = n.Cross(t)
	return t, b
}

func unitSphere(r0, r1 float32) mgl32.Vec3 {
	z := 1 - 2*r0
	s := math32.Sqrt(math32.Max(0, 1-z*z))
	phi := 2 * math32.Pi * r1
	return mgl32.Vec3{s * math32.Cos(phi), s * math32.Sin(phi), z}
}

// SampleEmitter returns the spawn position and velocity for one particle.
// Velocity is the emitter direction; its magnitude is the spawn speed.
func SampleEmitter(p core.EmitParams, r [4]float32) (pos, vel mgl32.Vec3) {
	vel = p.Direction
	switch p.EmitterType {
	case core.EmitterDisk:
		n := mgl32.Vec3{0, 1, 0}
		if p.Direction.Len() > 0 {
			n = p.Direction.Normalize()
		}
		t, b := orthoBasis(n)
		theta := 2 * math32.Pi * r[0]
		rr := p.Radius * math32.Sqrt(r[1])
		offset := t.Mul(math32.Cos(theta)).Add(b.Mul(math32.Sin(theta))).Mul(rr)
		return p.Position.Add(offset), vel
	case core.EmitterSphere:
		return p.Position.Add(unitSphere(r[0], r[1]).Mul(p.Radius)), vel
	case core.EmitterBall:
		return p.Position.Add(unitSphere(r[0], r[1]).Mul(p.Radius * math32.Cbrt(r[2]))), vel
	default:
		return p.Position, vel
	}
}

// Lifetime interpolates the age range with a random value in [0,1).
func Lifetime(minAge, maxAge, r float32) float32 {
	return minAge + (maxAge-minAge)*r
}
