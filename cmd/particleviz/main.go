// Command particleviz runs the particle pipeline headless and writes a PNG
// snapshot of the last frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"os/signal"
	"time"

	"github.com/gekko3d/particles"
	"github.com/gekko3d/particles/metrics"
	"github.com/gekko3d/particles/particlert/rt/core"
	"github.com/gekko3d/particles/particlert/rt/device"
	_ "github.com/gekko3d/particles/particlert/rt/gpu"
	"github.com/gekko3d/particles/particlert/rt/preview"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "", "Particle config (TOML)")
	backend := flag.String("backend", device.NameSoft, "Compute backend: soft or wgpu")
	frames := flag.Int("frames", 120, "Frames to simulate")
	step := flag.Duration("step", time.Second/60, "Fixed time step")
	out := flag.String("out", "particles.png", "Output PNG")
	width := flag.Int("width", 960, "Image width")
	height := flag.Int("height", 540, "Image height")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address until interrupted")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := run(*configPath, *backend, *frames, *step, *out, *width, *height, *metricsAddr, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "particleviz: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, backend string, frames int, step time.Duration, out string, width, height int, metricsAddr string, debug bool) error {
	cfg := core.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = core.LoadConfig(configPath); err != nil {
			return err
		}
	}

	app := particles.NewAppBuilder().
		UseModule(
			particles.LoggingModule{Prefix: "particleviz", Debug: debug},
			particles.TimeModule{FixedStep: step},
		).
		Build()
	log := app.Logger()

	var col *metrics.Collectors
	var srv *metrics.Server
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		col = metrics.NewCollectors(reg)
		srv = metrics.NewServer(metricsAddr, reg, log)
		srv.Start()
	}

	app.UseBackend(backend, particles.ParticlesModule{Config: cfg, Backend: backend, ConfigPath: configPath, Metrics: col})
	defer app.Close()

	app.RunFrames(frames)

	state, _ := particles.Resource[particles.ParticleState](app)
	cam, _ := particles.Resource[core.CameraState](app)

	ps, err := state.Engine.ReadParticles()
	if err != nil {
		return err
	}
	order, err := state.Engine.SortedIndices()
	if err != nil {
		return err
	}

	r := preview.NewRenderer(width, height)
	img := r.Draw(ps, order, cam, state.Engine.Config().Render)
	st := state.Engine.Stats()
	preview.Caption(img, fmt.Sprintf("%s  frames %d  alive %d/%d  sorted %v", backend, st.Frames, state.Engine.Alive(), state.Engine.Capacity(), state.Last.Sorted))

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infof("Wrote %s (%d particles)\n%s", out, len(ps), state.Engine.Profiler().GetStatsString())

	if srv != nil {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		log.Infof("Serving metrics on %s, Ctrl-C to exit", metricsAddr)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
	return nil
}
