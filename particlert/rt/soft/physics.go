package soft

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// CurlNoise is an analytic divergence-free field.
func CurlNoise(p mgl32.Vec3, t float32) mgl32.Vec3 {
	x, y, z := p[0], p[1], p[2]
	return mgl32.Vec3{
		-math32.Sin(y) - math32.Cos(z+t),
		-math32.Sin(z) - math32.Cos(x+t),
		-math32.Sin(x) - math32.Cos(y+t),
	}
}

// SampleField returns the nearest cell of the vector field grid at pos.
// Positions outside the grid clamp to the border cells.
func SampleField(field View, p core.SimParams, pos mgl32.Vec3) mgl32.Vec3 {
	dims := p.FieldDims
	if dims[0] == 0 || dims[1] == 0 || dims[2] == 0 {
		return mgl32.Vec3{}
	}
	var cell [3]uint32
	for a := 0; a < 3; a++ {
		ext := p.FieldExtent[a]
		u := float32(0)
		if ext > 0 {
			u = (pos[a] - p.FieldOrigin[a]) / ext
		}
		u = math32.Min(math32.Max(u, 0), 1)
		cell[a] = min(uint32(u*float32(dims[a])), dims[a]-1)
	}
	idx := cell[0] + cell[1]*dims[0] + cell[2]*dims[0]*dims[1]
	if (idx+1)*4 > field.Len() {
		return mgl32.Vec3{}
	}
	return field.Vec4(idx).Vec3()
}

// Constrain clamps pos into the bounding volume centred at the origin and
// reflects the velocity component pointing outward.
func Constrain(pos, vel mgl32.Vec3, volume core.BoundingVolume, size float32) (mgl32.Vec3, mgl32.Vec3) {
	switch volume {
	case core.BoundingSphere:
		l := pos.Len()
		if l <= size || l == 0 {
			return pos, vel
		}
		n := pos.Mul(1 / l)
		pos = n.Mul(size)
		if d := vel.Dot(n); d > 0 {
			vel = vel.Sub(n.Mul(2 * d))
		}
	case core.BoundingBox:
		for a := 0; a < 3; a++ {
			if pos[a] > size {
				pos[a] = size
				if vel[a] > 0 {
					vel[a] = -vel[a]
				}
			} else if pos[a] < -size {
				pos[a] = -size
				if vel[a] < 0 {
					vel[a] = -vel[a]
				}
			}
		}
	}
	return pos, vel
}

// Step advances one particle by p.Dt. r supplies the scattering jitter.
func Step(pt core.Particle, p core.SimParams, r [4]float32, field View) core.Particle {
	dt := p.Dt
	v := pt.Velocity

	if p.Flags&core.FlagScattering != 0 {
		jitter := mgl32.Vec3{r[0]*2 - 1, r[1]*2 - 1, r[2]*2 - 1}
		v = v.Add(jitter.Mul(p.Scattering * dt))
	}
	if p.Flags&core.FlagVectorField != 0 {
		v = v.Add(SampleField(field, p, pt.Position).Mul(p.VectorField * dt))
	}
	if p.Flags&core.FlagCurlNoise != 0 {
		v = v.Add(CurlNoise(pt.Position.Mul(p.CurlScale), p.Time).Mul(p.CurlNoise * dt))
	}
	if p.Flags&core.FlagVelocityControl != 0 {
		v = v.Mul(math32.Max(0, 1-p.Velocity*dt))
	}

	pos := pt.Position.Add(v.Mul(dt))
	pt.Position, pt.Velocity = Constrain(pos, v, p.Bounding, p.BoundingSize)
	pt.Age += dt
	pt.RestLife = 0
	if pt.Lifetime > 0 {
		pt.RestLife = math32.Max(0, 1-pt.Age/pt.Lifetime)
	}
	return pt
}
