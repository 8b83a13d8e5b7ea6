package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"

	"github.com/chewxy/math32"
	"github.com/gekko3d/particles"
	"github.com/gekko3d/particles/particlert/rt/app"
	"github.com/gekko3d/particles/particlert/rt/core"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Particle config (TOML). Reloaded on change.")
	stats := flag.Bool("stats", false, "Print FPS and stage timings every second")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	log := particles.NewDefaultLogger("particles", *debug)

	cfg := core.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = core.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "Particles", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg)
	application.Logger = log
	application.ShowStats = *stats
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Close()

	if *configPath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			err := core.Watch(ctx, *configPath, application.QueueConfig, func(err error) {
				log.Warnf("config reload: %v", err)
			})
			if err != nil {
				log.Errorf("%v", err)
			}
		}()
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})

	var lastX, lastY float64
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if application.MouseCaptured {
			dx := float32(xpos - lastX)
			dy := float32(ypos - lastY)

			cam := application.Camera
			cam.Yaw += dx * cam.Sensitivity
			cam.Pitch -= dy * cam.Sensitivity
			limit := 89 * math32.Pi / 180
			cam.Pitch = math32.Max(-limit, math32.Min(limit, cam.Pitch))
		}
		lastX, lastY = xpos, ypos
	})

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyTab:
			application.MouseCaptured = !application.MouseCaptured
			if application.MouseCaptured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		case glfw.KeyP:
			application.Paused = !application.Paused
		case glfw.KeyO:
			c := application.Particles.Config()
			c.Sorting = !c.Sorting
			application.QueueConfig(c)
			fmt.Printf("Sorting: %v\n", c.Sorting)
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		}
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
}
