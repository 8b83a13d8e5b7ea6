package particles

import (
	"github.com/chewxy/math32"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

const maxPitch = 89 * math32.Pi / 180

// CameraInput is filled by the platform layer every frame.
// Move is right/up/forward in [-1,1], Look is the mouse delta in pixels.
type CameraInput struct {
	Move mgl32.Vec3
	Look mgl32.Vec2
}

// FlyingCameraModule moves the shared CameraState from CameraInput.
type FlyingCameraModule struct{}

func (m FlyingCameraModule) Install(app *App, cmd *Commands) {
	if _, ok := Resource[CameraInput](app); !ok {
		cmd.AddResources(&CameraInput{})
	}
	if _, ok := Resource[core.CameraState](app); !ok {
		cmd.AddResources(core.NewCameraState())
	}
	cmd.UseSystem(
		System(flyingCameraSystem).
			InStage(PreUpdate).
			RunAlways(),
	)
}

func flyingCameraSystem(input *CameraInput, cam *core.CameraState, t *Time) {
	dt := t.Seconds()
	if dt <= 0 {
		return
	}

	cam.Yaw += input.Look[0] * cam.Sensitivity
	cam.Pitch -= input.Look[1] * cam.Sensitivity
	cam.Pitch = math32.Max(-maxPitch, math32.Min(maxPitch, cam.Pitch))
	input.Look = mgl32.Vec2{}

	forward := cam.GetForward()
	right := cam.GetRight()
	up := mgl32.Vec3{0, 1, 0}

	dir := right.Mul(input.Move[0]).Add(up.Mul(input.Move[1])).Add(forward.Mul(input.Move[2]))
	if dir.Len() > 0 {
		cam.Position = cam.Position.Add(dir.Normalize().Mul(cam.Speed * dt))
	}
}
