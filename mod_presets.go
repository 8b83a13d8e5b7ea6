package particles

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

type ParticleData struct {
	Position mgl32.Vec3 `json:"position"`
	Velocity mgl32.Vec3 `json:"velocity"`
	Age      float32    `json:"age"`
	Lifetime float32    `json:"lifetime"`
	RestLife float32    `json:"rest_life"`
}

// PresetData is a saved particle system: its config plus the particles
// that were alive when it was saved.
type PresetData struct {
	Config    core.Config    `json:"config"`
	Camera    *CameraPreset  `json:"camera,omitempty"`
	Particles []ParticleData `json:"particles"`
}

type CameraPreset struct {
	Position mgl32.Vec3 `json:"position"`
	Yaw      float32    `json:"yaw"`
	Pitch    float32    `json:"pitch"`
}

func SavePreset(state *ParticleState, cam *core.CameraState, filename string) error {
	ps, err := state.Engine.ReadParticles()
	if err != nil {
		return err
	}

	data := PresetData{
		Config:    state.Engine.Config(),
		Particles: make([]ParticleData, 0, len(ps)),
	}
	if cam != nil {
		data.Camera = &CameraPreset{Position: cam.Position, Yaw: cam.Yaw, Pitch: cam.Pitch}
	}
	for _, p := range ps {
		data.Particles = append(data.Particles, ParticleData{
			Position: p.Position,
			Velocity: p.Velocity,
			Age:      p.Age,
			Lifetime: p.Lifetime,
			RestLife: p.RestLife,
		})
	}

	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	return os.WriteFile(filename, bytes, 0644)
}

// LoadPreset applies the runtime-tunable part of the saved config and
// replaces the live particles. Capacity and layout stay as they are.
func LoadPreset(state *ParticleState, cam *core.CameraState, filename string) (int, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return 0, err
	}

	var data PresetData
	if err := json.Unmarshal(bytes, &data); err != nil {
		return 0, fmt.Errorf("failed to unmarshal preset: %w", err)
	}

	if err := state.Engine.ApplyConfig(data.Config); err != nil {
		return 0, err
	}
	if cam != nil && data.Camera != nil {
		cam.Position = data.Camera.Position
		cam.Yaw = data.Camera.Yaw
		cam.Pitch = data.Camera.Pitch
	}

	ps := make([]core.Particle, 0, len(data.Particles))
	for _, d := range data.Particles {
		ps = append(ps, core.Particle{
			Position: d.Position,
			Velocity: d.Velocity,
			Age:      d.Age,
			Lifetime: d.Lifetime,
			RestLife: d.RestLife,
		})
	}
	if err := state.Engine.LoadParticles(ps); err != nil {
		return 0, err
	}
	return min(len(ps), int(state.Engine.Capacity())), nil
}
