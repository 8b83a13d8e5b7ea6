package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Particle is the host mirror of one particle record.
// struct { position: vec4; velocity: vec4; age_life: vec4 }
type Particle struct {
	Position mgl32.Vec3
	RestLife float32
	Velocity mgl32.Vec3
	Age      float32
	Lifetime float32
}

// Alive reports whether the particle survives another step.
func (p Particle) Alive() bool { return p.Age < p.Lifetime }

// Slots returns the three attribute slots of the record.
func (p Particle) Slots() [NumAttributeSlots]mgl32.Vec4 {
	return [NumAttributeSlots]mgl32.Vec4{
		AttrPosition: p.Position.Vec4(p.RestLife),
		AttrVelocity: p.Velocity.Vec4(0),
		AttrAgeLife:  {p.Age, p.Lifetime, 0, 0},
	}
}

// ParticleFromSlots rebuilds a record from its attribute slots.
func ParticleFromSlots(s [NumAttributeSlots]mgl32.Vec4) Particle {
	return Particle{
		Position: s[AttrPosition].Vec3(),
		RestLife: s[AttrPosition].W(),
		Velocity: s[AttrVelocity].Vec3(),
		Age:      s[AttrAgeLife].X(),
		Lifetime: s[AttrAgeLife].Y(),
	}
}

// DecodeParticles unpacks count particles from raw store bytes.
func DecodeParticles(data []byte, layout Layout, capacity, count uint32) []Particle {
	out := make([]Particle, 0, count)
	for i := uint32(0); i < count; i++ {
		var s [NumAttributeSlots]mgl32.Vec4
		for a := uint32(0); a < NumAttributeSlots; a++ {
			base := AttrIndex(layout, capacity, NumAttributeSlots, a, i) * AttributeSlotSize
			for c := 0; c < 4; c++ {
				off := int(base) + c*4
				s[a][c] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
			}
		}
		out = append(out, ParticleFromSlots(s))
	}
	return out
}

// EncodeParticles packs particles into a store-shaped byte slice.
func EncodeParticles(ps []Particle, layout Layout, capacity uint32) []byte {
	buf := make([]byte, uint64(capacity)*NumAttributeSlots*AttributeSlotSize)
	for i, p := range ps {
		slots := p.Slots()
		for a := uint32(0); a < NumAttributeSlots; a++ {
			base := AttrIndex(layout, capacity, NumAttributeSlots, a, uint32(i)) * AttributeSlotSize
			for c := 0; c < 4; c++ {
				binary.LittleEndian.PutUint32(buf[int(base)+c*4:], math.Float32bits(slots[a][c]))
			}
		}
	}
	return buf
}
