package preview

import (
	"image/color"
	"testing"

	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestProjectCentersLookTarget(t *testing.T) {
	r := NewRenderer(64, 48)
	cam := core.NewCameraState()

	x, y, ok := r.Project(cam.Position.Add(cam.GetForward().Mul(10)), cam)
	assert.True(t, ok)
	assert.InDelta(t, 32, x, 1e-3)
	assert.InDelta(t, 24, y, 1e-3)

	_, _, ok = r.Project(cam.Position.Sub(cam.GetForward()), cam)
	assert.False(t, ok)
}

func TestDrawHonorsOrder(t *testing.T) {
	r := NewRenderer(64, 64)
	r.MinRadius = 4
	cam := core.NewCameraState()
	render := core.DefaultConfig().Render
	render.FadeFactor = 0
	render.DeathColor[3] = 1

	at := mgl32.Vec3{0, 2, 0}
	ps := []core.Particle{
		{Position: at, RestLife: 1},
		{Position: at, RestLife: 0},
	}

	img := r.Draw(ps, []uint32{0, 1}, cam, render)
	assert.Equal(t, uint8(153), img.RGBAAt(32, 32).R)

	img = r.Draw(ps, []uint32{1, 0}, cam, render)
	assert.Equal(t, uint8(255), img.RGBAAt(32, 32).R)
	assert.Equal(t, r.Background, color.Color(img.RGBAAt(0, 0)))
}

func TestDrawSkipsOffscreenAndBadIndices(t *testing.T) {
	r := NewRenderer(32, 32)
	cam := core.NewCameraState()
	ps := []core.Particle{
		{Position: mgl32.Vec3{1000, 0, 0}, RestLife: 1},
		{Position: mgl32.Vec3{0, 2, 40}, RestLife: 1},
	}

	img := r.Draw(ps, []uint32{0, 1, 7}, cam, core.DefaultConfig().Render)
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			assert.Equal(t, r.Background, color.Color(img.RGBAAt(x, y)))
		}
	}
}
