package core

import "math/bits"

// GroupWidth is the workgroup size every particle kernel is compiled with.
// Must match @workgroup_size in the WGSL sources.
const GroupWidth = 256

// MinBatchEmitCount is the lower bound of the per-frame emission batch.
const MinBatchEmitCount = 256

// Attribute slots of the particle record. Each slot is one vec4<f32>.
const (
	AttrPosition = 0 // xyz position, w rest life in [0,1]
	AttrVelocity = 1 // xyz velocity, w unused
	AttrAgeLife  = 2 // x age, y lifetime

	NumAttributeSlots = 3
	AttributeSlotSize = 16
)

// Layout selects how attribute slots are laid out in a store buffer.
type Layout uint32

const (
	// LayoutSoA stores every attribute in its own contiguous range.
	LayoutSoA Layout = iota
	// LayoutAoS interleaves the attribute slots of each particle.
	LayoutAoS
)

func (l Layout) String() string {
	switch l {
	case LayoutSoA:
		return "soa"
	case LayoutAoS:
		return "aos"
	}
	return "unknown"
}

func (l Layout) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Layout) UnmarshalText(text []byte) error {
	switch string(text) {
	case "soa", "":
		*l = LayoutSoA
	case "aos":
		*l = LayoutAoS
	default:
		return unknownValue("layout", text)
	}
	return nil
}

// AttrIndex returns the vec4 index of attribute attr of particle i.
// Kernels on every device use this exact mapping.
func AttrIndex(layout Layout, capacity, slots, attr, i uint32) uint32 {
	if layout == LayoutAoS {
		return i*slots + attr
	}
	return attr*capacity + i
}

// NormalizeCapacity floors maxParticles to a multiple of groupWidth.
// A request smaller than one group yields one group; nothing is rejected.
func NormalizeCapacity(maxParticles, groupWidth uint32) uint32 {
	if groupWidth == 0 {
		return maxParticles
	}
	c := (maxParticles / groupWidth) * groupWidth
	if c == 0 {
		c = groupWidth
	}
	return c
}

// BatchEmitCount is the default per-frame emission cap for a capacity.
func BatchEmitCount(capacity uint32) uint32 {
	return max(MinBatchEmitCount, capacity/16)
}

// NextPow2 returns the smallest power of two >= n (1 for n == 0).
func NextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// Log2 returns floor(log2(n)) for n > 0.
func Log2(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return uint32(bits.Len32(n) - 1)
}

// NumGroups returns the number of workgroups covering n invocations.
func NumGroups(n, groupWidth uint32) uint32 {
	return (n + groupWidth - 1) / groupWidth
}
