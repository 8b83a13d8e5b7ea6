package core

import (
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pelletier/go-toml/v2"
)

type EmitterType uint32

const (
	EmitterPoint EmitterType = iota
	EmitterDisk
	EmitterSphere
	EmitterBall
)

var emitterNames = []string{"point", "disk", "sphere", "ball"}

func (t EmitterType) String() string { return enumName(emitterNames, uint32(t)) }

func (t EmitterType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *EmitterType) UnmarshalText(text []byte) error {
	v, err := enumValue("emitter_type", emitterNames, text)
	*t = EmitterType(v)
	return err
}

type BoundingVolume uint32

const (
	BoundingNone BoundingVolume = iota
	BoundingSphere
	BoundingBox
)

var boundingNames = []string{"none", "sphere", "box"}

func (b BoundingVolume) String() string { return enumName(boundingNames, uint32(b)) }

func (b BoundingVolume) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BoundingVolume) UnmarshalText(text []byte) error {
	v, err := enumValue("bounding_volume", boundingNames, text)
	*b = BoundingVolume(v)
	return err
}

type RenderMode uint32

const (
	RenderStretched RenderMode = iota
	RenderPointSprite
)

var renderModeNames = []string{"stretched", "point_sprite"}

func (m RenderMode) String() string { return enumName(renderModeNames, uint32(m)) }

func (m RenderMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *RenderMode) UnmarshalText(text []byte) error {
	v, err := enumValue("render_mode", renderModeNames, text)
	*m = RenderMode(v)
	return err
}

type ColorMode uint32

const (
	ColorFlat ColorMode = iota
	ColorGradient
)

var colorModeNames = []string{"flat", "gradient"}

func (m ColorMode) String() string { return enumName(colorModeNames, uint32(m)) }

func (m ColorMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *ColorMode) UnmarshalText(text []byte) error {
	v, err := enumValue("color_mode", colorModeNames, text)
	*m = ColorMode(v)
	return err
}

// Toggle pairs an on/off switch with its strength.
type Toggle struct {
	Enabled bool    `toml:"enabled"`
	Factor  float32 `toml:"factor"`
}

type EmitterConfig struct {
	Type      EmitterType `toml:"emitter_type"`
	Position  [3]float32  `toml:"emitter_position"`
	Direction [3]float32  `toml:"emitter_direction"` // magnitude is the spawn speed
	Radius    float32     `toml:"emitter_radius"`
	MinAge    float32     `toml:"min_age"`
	MaxAge    float32     `toml:"max_age"`
	Rate      float32     `toml:"emit_rate"` // particles per second requested by Engine.Frame
}

type SimulationConfig struct {
	TimeStepFactor  float32        `toml:"time_step_factor"`
	BoundingVolume  BoundingVolume `toml:"bounding_volume"`
	BoundingSize    float32        `toml:"bounding_size"`
	Scattering      Toggle         `toml:"scattering"`
	VectorField     Toggle         `toml:"vector_field"`
	CurlNoise       Toggle         `toml:"curl_noise"`
	CurlNoiseScale  float32        `toml:"curl_noise_scale"`
	VelocityControl Toggle         `toml:"velocity_control"`
}

type RenderConfig struct {
	Mode          RenderMode `toml:"render_mode"`
	ColorMode     ColorMode  `toml:"color_mode"`
	MinSize       float32    `toml:"min_size"`
	MaxSize       float32    `toml:"max_size"`
	StretchFactor float32    `toml:"stretch_factor"`
	FadeFactor    float32    `toml:"fade_factor"`
	BirthColor    [4]float32 `toml:"birth_color"`
	DeathColor    [4]float32 `toml:"death_color"`
}

// VerticesPerParticle is the draw vertex count written into the indirect args.
// Both modes expand each particle into a two-triangle quad.
func (r RenderConfig) VerticesPerParticle() uint32 { return 6 }

type Config struct {
	MaxParticles   uint32 `toml:"max_particles"`
	BatchEmitCount uint32 `toml:"batch_emit_count"` // 0 selects BatchEmitCount(capacity)
	RandomCount    uint32 `toml:"random_count"`     // 0 selects 4 * batch
	Layout         Layout `toml:"layout"`
	Sorting        bool   `toml:"sorting"`
	DirectDispatch bool   `toml:"direct_dispatch"`
	Seed           uint64 `toml:"seed"`

	Emitter    EmitterConfig    `toml:"emitter"`
	Simulation SimulationConfig `toml:"simulation"`
	Render     RenderConfig     `toml:"render"`
}

func DefaultConfig() Config {
	return Config{
		MaxParticles: 1 << 16,
		Layout:       LayoutSoA,
		Sorting:      true,
		Seed:         1,
		Emitter: EmitterConfig{
			Type:      EmitterSphere,
			Direction: [3]float32{0, 1, 0},
			Radius:    0.5,
			MinAge:    2,
			MaxAge:    5,
			Rate:      8192,
		},
		Simulation: SimulationConfig{
			TimeStepFactor:  1,
			BoundingVolume:  BoundingSphere,
			BoundingSize:    16,
			Scattering:      Toggle{Enabled: true, Factor: 0.5},
			VectorField:     Toggle{Enabled: false, Factor: 1},
			CurlNoise:       Toggle{Enabled: true, Factor: 0.8},
			CurlNoiseScale:  0.25,
			VelocityControl: Toggle{Enabled: true, Factor: 0.1},
		},
		Render: RenderConfig{
			Mode:          RenderStretched,
			ColorMode:     ColorGradient,
			MinSize:       0.02,
			MaxSize:       0.08,
			StretchFactor: 0.25,
			FadeFactor:    0.5,
			BirthColor:    [4]float32{1, 0.8, 0.3, 1},
			DeathColor:    [4]float32{0.6, 0.1, 0.05, 0},
		},
	}
}

// Capacity returns the normalized particle capacity.
func (c Config) Capacity() uint32 {
	return NormalizeCapacity(c.MaxParticles, GroupWidth)
}

// BatchCap returns the per-frame emission cap.
func (c Config) BatchCap() uint32 {
	if c.BatchEmitCount > 0 {
		return c.BatchEmitCount
	}
	return BatchEmitCount(c.Capacity())
}

// RandomValues returns the size of the random supply.
func (c Config) RandomValues() uint32 {
	if c.RandomCount > 0 {
		return c.RandomCount
	}
	return 4 * c.BatchCap()
}

// Validate normalizes out-of-range values in place. Only contradictions
// that cannot be normalized are reported.
func (c *Config) Validate() error {
	if c.MaxParticles == 0 {
		return fmt.Errorf("max_particles must be positive")
	}
	if c.Layout > LayoutAoS {
		return unknownValue("layout", []byte(fmt.Sprint(uint32(c.Layout))))
	}
	e := &c.Emitter
	if e.MinAge < 0 {
		e.MinAge = 0
	}
	if e.MaxAge < e.MinAge {
		e.MinAge, e.MaxAge = e.MaxAge, e.MinAge
		if e.MinAge < 0 {
			e.MinAge = 0
		}
	}
	if e.Radius < 0 {
		e.Radius = -e.Radius
	}
	if e.Rate < 0 {
		e.Rate = 0
	}
	s := &c.Simulation
	if s.TimeStepFactor <= 0 {
		s.TimeStepFactor = 1
	}
	if s.BoundingSize <= 0 {
		s.BoundingVolume = BoundingNone
	}
	r := &c.Render
	if r.MaxSize < r.MinSize {
		r.MinSize, r.MaxSize = r.MaxSize, r.MinSize
	}
	return nil
}

// EmitterPosition returns the emitter position as a vector.
func (e EmitterConfig) EmitterPosition() mgl32.Vec3 { return mgl32.Vec3(e.Position) }

// EmitterDirection returns the emitter direction as a vector.
func (e EmitterConfig) EmitterDirection() mgl32.Vec3 { return mgl32.Vec3(e.Direction) }

// LoadConfig reads a TOML config on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as TOML.
func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func enumName(names []string, v uint32) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("unknown(%d)", v)
}

func enumValue(field string, names []string, text []byte) (uint32, error) {
	for i, n := range names {
		if n == string(text) {
			return uint32(i), nil
		}
	}
	return 0, unknownValue(field, text)
}

func unknownValue(field string, text []byte) error {
	return fmt.Errorf("unknown %s %q", field, string(text))
}
