package particles

import (
	"time"
)

type Time struct {
	Time time.Time
	Dt   time.Duration
	// FixedStep replaces the measured Dt when nonzero.
	FixedStep time.Duration
	Elapsed   time.Duration
}

// Seconds returns Dt as float32 seconds.
func (t *Time) Seconds() float32 { return float32(t.Dt.Seconds()) }

type TimeModule struct {
	FixedStep time.Duration
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Time:      time.Now(),
		FixedStep: mod.FixedStep,
	})
	cmd.UseSystem(System(timeSystem).InStage(Prelude))
}

func timeSystem(timeResource *Time) {
	now := time.Now()

	timeResource.Dt = now.Sub(timeResource.Time)
	if timeResource.FixedStep > 0 {
		timeResource.Dt = timeResource.FixedStep
	}
	timeResource.Time = now
	timeResource.Elapsed += timeResource.Dt
}
