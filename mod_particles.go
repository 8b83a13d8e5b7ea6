package particles

import (
	"context"
	"fmt"

	"github.com/gekko3d/particles/metrics"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	"github.com/gekko3d/particles/particlert/rt/engine"
	_ "github.com/gekko3d/particles/particlert/rt/soft"
)

// ParticlesModule runs one particle engine per frame in the Update stage.
type ParticlesModule struct {
	Config core.Config
	// Backend is a device registry name. Empty picks device.OpenDefault.
	Backend string
	// Device overrides Backend. The module does not close it.
	Device device.Device
	// ConfigPath enables hot reload of the runtime-tunable settings.
	ConfigPath string
	Metrics    *metrics.Collectors
}

// ParticleState is the resource systems use to reach the engine.
type ParticleState struct {
	Engine *engine.Engine
	Device device.Device
	Last   engine.FrameResult
	Paused bool

	log     Logger
	metrics *metrics.Collectors
	reloads chan core.Config
}

func (m ParticlesModule) Install(app *App, cmd *Commands) {
	log := app.Logger()

	dev := m.Device
	owned := dev == nil
	if owned {
		var err error
		if m.Backend == "" {
			dev, err = device.OpenDefault()
		} else {
			dev, err = device.Open(m.Backend)
		}
		if err != nil {
			log.Errorf("particles: %v", err)
			panic(fmt.Sprintf("particles: %v", err))
		}
	}
	ensureSingleBackend(app, dev.Name())

	eng, err := engine.New(dev, m.Config, engine.Options{Logger: log})
	if err != nil {
		if owned {
			dev.Close()
		}
		log.Errorf("particles: %v", err)
		panic(fmt.Sprintf("particles: %v", err))
	}

	state := &ParticleState{
		Engine:  eng,
		Device:  dev,
		log:     log,
		metrics: m.Metrics,
		reloads: make(chan core.Config, 1),
	}
	cmd.AddResources(state)
	cmd.OnClose(func() {
		eng.Close()
		if owned {
			dev.Close()
		}
	})

	if _, ok := Resource[Time](app); !ok {
		TimeModule{}.Install(app, cmd)
	}
	if _, ok := Resource[core.CameraState](app); !ok {
		cmd.AddResources(core.NewCameraState())
	}

	cmd.UseSystem(System(particlesFrameSystem).InStage(Update))
	if m.Metrics != nil {
		cmd.UseSystem(System(particlesMetricsSystem).InStage(PostRender))
		cmd.OnClose(func() { m.Metrics.Forget(eng.Label()) })
	}

	if m.ConfigPath != "" {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			err := core.Watch(ctx, m.ConfigPath, state.queueReload, func(err error) {
				log.Warnf("particles: config reload: %v", err)
			})
			if err != nil {
				log.Errorf("particles: %v", err)
			}
		}()
		cmd.OnClose(cancel)
	}
}

// queueReload keeps only the newest pending config.
func (s *ParticleState) queueReload(cfg core.Config) {
	for {
		select {
		case s.reloads <- cfg:
			return
		default:
		}
		select {
		case <-s.reloads:
		default:
		}
	}
}

func particlesFrameSystem(t *Time, state *ParticleState, cam *core.CameraState) {
	select {
	case cfg := <-state.reloads:
		if err := state.Engine.ApplyConfig(cfg); err != nil {
			state.log.Warnf("particles: %v", err)
		} else {
			state.log.Infof("particles: config reloaded")
		}
	default:
	}

	if state.Paused {
		return
	}
	state.Last = state.Engine.Frame(t.Seconds(), cam.GetViewMatrix())
}

func particlesMetricsSystem(state *ParticleState) {
	state.metrics.Observe(state.Engine)
}
