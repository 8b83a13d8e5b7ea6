package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
	Fov         float32 // degrees
	Near        float32
	Far         float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 2, 20},
		Speed:       10.0,
		Sensitivity: 0.003,
		Fov:         60,
		Near:        0.1,
		Far:         500,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	// Y-up: yaw 0 looks down -Z
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		float32(-math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.GetForward())
	return mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
}

func (c *CameraState) GetProjectionMatrix(aspect float32) mgl32.Mat4 {
	if aspect <= 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.Fov), aspect, c.Near, c.Far)
}

// SortBasis extracts the depth-sort basis from a view matrix: the camera
// position (inverse view translation) and the view matrix's third row.
// Sort keys are dot(position - cameraPos, viewDir).
func SortBasis(view mgl32.Mat4) (cameraPos, viewDir mgl32.Vec3) {
	inv := view.Inv()
	cameraPos = inv.Col(3).Vec3()
	viewDir = view.Row(2).Vec3()
	if l := viewDir.Len(); l > 0 {
		viewDir = viewDir.Mul(1 / l)
	}
	return cameraPos, viewDir
}

// SortKey is the host reference of the sort_keys kernel.
func SortKey(p, cameraPos, viewDir mgl32.Vec3) float32 {
	return p.Sub(cameraPos).Dot(viewDir)
}
