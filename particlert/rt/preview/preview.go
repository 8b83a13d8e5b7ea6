// Package preview rasterizes particles on the CPU for headless snapshots.
package preview

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/chewxy/math32"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const discSegments = 12

type Renderer struct {
	Width, Height int
	Background    color.Color
	// MinRadius keeps far particles visible, in pixels.
	MinRadius float32

	z *vector.Rasterizer
}

func NewRenderer(width, height int) *Renderer {
	return &Renderer{
		Width:      width,
		Height:     height,
		Background: color.RGBA{5, 5, 8, 255},
		MinRadius:  0.75,
		z:          vector.NewRasterizer(1, 1),
	}
}

// Draw composites particles in order, or in slice order when order is nil.
// Indices past the end of ps are skipped.
func (r *Renderer) Draw(ps []core.Particle, order []uint32, cam *core.CameraState, render core.RenderConfig) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)

	proj := cam.GetProjectionMatrix(float32(r.Width) / float32(r.Height))
	viewProj := proj.Mul4(cam.GetViewMatrix())
	focal := proj.At(1, 1)

	splat := func(p core.Particle) {
		cx, cy, w, ok := r.project(viewProj, p.Position, cam.Near)
		if !ok {
			return
		}
		rest := math32.Max(0, math32.Min(1, p.RestLife))
		size := mix(render.MinSize, render.MaxSize, rest)
		radius := math32.Max(r.MinRadius, size*focal/w*float32(r.Height)*0.5)
		r.disc(img, cx, cy, radius, particleColor(render, rest))
	}

	if order == nil {
		for _, p := range ps {
			splat(p)
		}
	} else {
		for _, i := range order {
			if int(i) < len(ps) {
				splat(ps[i])
			}
		}
	}
	return img
}

// disc draws a filled polygon approximating a circle. Discs that cross the
// image edge are dropped.
func (r *Renderer) disc(img *image.RGBA, cx, cy, radius float32, c color.NRGBA) {
	box := image.Rect(
		int(math32.Floor(cx-radius)), int(math32.Floor(cy-radius)),
		int(math32.Ceil(cx+radius)), int(math32.Ceil(cy+radius)),
	)
	if box.Empty() || !box.In(img.Bounds()) {
		return
	}

	ox := cx - float32(box.Min.X)
	oy := cy - float32(box.Min.Y)
	r.z.Reset(box.Dx(), box.Dy())
	r.z.MoveTo(ox+radius, oy)
	for i := 1; i < discSegments; i++ {
		a := float32(i) * 2 * math32.Pi / discSegments
		r.z.LineTo(ox+radius*math32.Cos(a), oy+radius*math32.Sin(a))
	}
	r.z.ClosePath()
	r.z.Draw(img, box, image.NewUniform(c), image.Point{})
}

// Caption writes one line of text in the top-left corner.
func Caption(img draw.Image, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, 16),
	}
	d.DrawString(text)
}

func particleColor(render core.RenderConfig, rest float32) color.NRGBA {
	c := render.BirthColor
	if render.ColorMode == core.ColorGradient {
		for i := range c {
			c[i] = mix(render.DeathColor[i], render.BirthColor[i], rest)
		}
	}
	c[3] *= mix(1, rest, render.FadeFactor)
	return color.NRGBA{unit8(c[0]), unit8(c[1]), unit8(c[2]), unit8(c[3])}
}

func mix(a, b, t float32) float32 { return a + (b-a)*t }

func unit8(v float32) uint8 {
	return uint8(math32.Max(0, math32.Min(1, v))*255 + 0.5)
}

// Project returns the pixel position of p, and false when it is behind the camera.
func (r *Renderer) Project(p mgl32.Vec3, cam *core.CameraState) (x, y float32, ok bool) {
	viewProj := cam.GetProjectionMatrix(float32(r.Width) / float32(r.Height)).Mul4(cam.GetViewMatrix())
	x, y, _, ok = r.project(viewProj, p, cam.Near)
	return x, y, ok
}

func (r *Renderer) project(viewProj mgl32.Mat4, p mgl32.Vec3, near float32) (x, y, w float32, ok bool) {
	clip := viewProj.Mul4x1(p.Vec4(1))
	w = clip.W()
	if w <= near {
		return 0, 0, 0, false
	}
	ndc := clip.Vec3().Mul(1 / w)
	return (ndc.X()*0.5 + 0.5) * float32(r.Width), (0.5 - ndc.Y()*0.5) * float32(r.Height), w, true
}
