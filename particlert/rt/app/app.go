package app

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/engine"
	"github.com/gekko3d/particles/particlert/rt/gpu"
	"github.com/gekko3d/particles/particlert/rt/shaders"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// App draws one particle engine into a glfw window.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	Particles   *engine.Engine
	ParticleCfg core.Config
	Logger      engine.Logger

	RenderPipeline *wgpu.RenderPipeline
	ParamsBuffer   *wgpu.Buffer
	// Bound in place of the sort indices when sorting is off.
	dummyIndices *wgpu.Buffer

	renderBG       *wgpu.BindGroup
	bgParticles    *wgpu.Buffer
	bgIndices      *wgpu.Buffer
	compute        *gpu.Device
	pendingConfigs chan core.Config

	Camera        *core.CameraState
	MouseCaptured bool
	Paused        bool
	ShowStats     bool

	LastTime       float64
	LastRenderTime float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, cfg core.Config) *App {
	return &App{
		Window:         window,
		ParticleCfg:    cfg,
		Camera:         core.NewCameraState(),
		pendingConfigs: make(chan core.Config, 1),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	a.compute = gpu.NewDeviceFrom(a.Device)
	a.Particles, err = engine.New(a.compute, a.ParticleCfg, engine.Options{Logger: a.Logger})
	if err != nil {
		return err
	}

	module, err := a.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Particles VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.ParticlesRenderWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	// Premultiplied alpha, matching fs_main.
	a.RenderPipeline, err = a.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Particles Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format: format,
				Blend: &wgpu.BlendState{
					Color: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
						Operation: wgpu.BlendOperationAdd,
					},
					Alpha: wgpu.BlendComponent{
						SrcFactor: wgpu.BlendFactorOne,
						DstFactor: wgpu.BlendFactorOne,
						Operation: wgpu.BlendOperationAdd,
					},
				},
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	a.ParamsBuffer, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Particles RenderParams",
		Size:  uint64(len(core.RenderParams{}.Bytes())),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	a.dummyIndices, err = a.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Particles Dummy Indices",
		Size:  16,
		Usage: wgpu.BufferUsageStorage,
	})
	if err != nil {
		return err
	}

	a.LastTime = glfw.GetTime()
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Config.Width = uint32(w)
		a.Config.Height = uint32(h)
		a.Surface.Configure(a.Adapter, a.Device, a.Config)
	}
}

// QueueConfig hands a reloaded config to the next Update. Safe to call
// from any goroutine.
func (a *App) QueueConfig(cfg core.Config) {
	select {
	case <-a.pendingConfigs:
	default:
	}
	select {
	case a.pendingConfigs <- cfg:
	default:
	}
}

func (a *App) Update() {
	now := glfw.GetTime()
	dt := float32(now - a.LastTime)
	a.LastTime = now

	select {
	case cfg := <-a.pendingConfigs:
		if err := a.Particles.ApplyConfig(cfg); err != nil {
			fmt.Printf("WARNING: config reload rejected: %v\n", err)
		} else {
			fmt.Println("Config reloaded")
		}
	default:
	}

	if a.MouseCaptured {
		a.moveCamera(dt)
	}
	if !a.Paused {
		a.Particles.Frame(dt, a.Camera.GetViewMatrix())
	}
}

func (a *App) moveCamera(dt float32) {
	forward := a.Camera.GetForward()
	right := a.Camera.GetRight()
	up := mgl32.Vec3{0, 1, 0}

	var dir mgl32.Vec3
	if a.Window.GetKey(glfw.KeyW) == glfw.Press {
		dir = dir.Add(forward)
	}
	if a.Window.GetKey(glfw.KeyS) == glfw.Press {
		dir = dir.Sub(forward)
	}
	if a.Window.GetKey(glfw.KeyD) == glfw.Press {
		dir = dir.Add(right)
	}
	if a.Window.GetKey(glfw.KeyA) == glfw.Press {
		dir = dir.Sub(right)
	}
	if a.Window.GetKey(glfw.KeySpace) == glfw.Press {
		dir = dir.Add(up)
	}
	if a.Window.GetKey(glfw.KeyLeftShift) == glfw.Press {
		dir = dir.Sub(up)
	}
	if dir.Len() > 0 {
		a.Camera.Position = a.Camera.Position.Add(dir.Normalize().Mul(a.Camera.Speed * dt))
	}
}

// bindGroup is rebuilt when the READ buffer or the sort indices change.
func (a *App) bindGroup(particles, indices *wgpu.Buffer) (*wgpu.BindGroup, error) {
	if a.renderBG != nil && particles == a.bgParticles && indices == a.bgIndices {
		return a.renderBG, nil
	}
	layout := a.RenderPipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := a.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Particles BG",
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: a.ParamsBuffer, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: particles, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: indices, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, err
	}
	if a.renderBG != nil {
		a.renderBG.Release()
	}
	a.renderBG, a.bgParticles, a.bgIndices = bg, particles, indices
	return bg, nil
}

func (a *App) Render() {
	target := a.Particles.RenderTarget()

	aspect := float32(a.Config.Width) / float32(a.Config.Height)
	params := core.NewRenderParams(a.Camera.GetViewMatrix(), a.Camera.GetProjectionMatrix(aspect), target.Render)
	params.Capacity = target.Capacity
	params.Layout = target.Layout.Layout
	params.Sorted = target.Sorted
	params.RenderOffset = uint32(target.IndicesOffset / 4)
	a.Queue.WriteBuffer(a.ParamsBuffer, 0, params.Bytes())

	indices := a.dummyIndices
	if target.Sorted {
		indices = gpu.Raw(target.Indices)
	}
	bg, err := a.bindGroup(gpu.Raw(target.Particles), indices)
	if err != nil {
		fmt.Printf("ERROR: CreateBindGroup failed: %v\n", err)
		return
	}

	nextTexture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		fmt.Printf("ERROR: GetCurrentTexture failed: %v\n", err)
		return
	}
	defer nextTexture.Release()
	view, err := nextTexture.CreateView(nil)
	if err != nil {
		fmt.Printf("ERROR: CreateView failed: %v\n", err)
		return
	}
	defer view.Release()

	encoder, err := a.Device.CreateCommandEncoder(nil)
	if err != nil {
		fmt.Printf("ERROR: CreateCommandEncoder failed: %v\n", err)
		return
	}
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0.02, G: 0.02, B: 0.03, A: 1},
		}},
	})
	pass.SetPipeline(a.RenderPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DrawIndirect(gpu.Raw(target.Args), target.DrawOffset)
	if err := pass.End(); err != nil {
		fmt.Printf("ERROR: Render pass End failed: %v\n", err)
	}

	cmd, err := encoder.Finish(nil)
	if err != nil {
		fmt.Printf("ERROR: Encoder Finish failed: %v\n", err)
		return
	}
	a.Queue.Submit(cmd)
	a.Surface.Present()

	now := glfw.GetTime()
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			if a.ShowStats {
				fmt.Printf("FPS: %.1f alive: %d\n%s", a.FPS, a.Particles.Alive(), a.Particles.Profiler().GetStatsString())
			}
		}
	}
	a.LastRenderTime = now
}

func (a *App) Close() {
	if a.renderBG != nil {
		a.renderBG.Release()
	}
	if a.Particles != nil {
		a.Particles.Close()
	}
	if a.compute != nil {
		a.compute.Close()
	}
	for _, b := range []*wgpu.Buffer{a.ParamsBuffer, a.dummyIndices} {
		if b != nil {
			b.Release()
		}
	}
	if a.RenderPipeline != nil {
		a.RenderPipeline.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}
