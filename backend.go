package particles

import (
	"fmt"
)

// BackendTag marks the compute backend installed into the App. Only one
// backend may drive the particle buffers.
type BackendTag struct {
	Name string
}

// ensureSingleBackend panics when a different backend is already installed.
func ensureSingleBackend(app *App, name string) {
	if app == nil {
		panic("ensureSingleBackend: app is nil")
	}
	if tag, ok := Resource[BackendTag](app); ok {
		if tag.Name != name {
			app.Logger().Errorf("Multiple particle backends installed: %s and %s", tag.Name, name)
			panic(fmt.Sprintf("Multiple particle backends installed: %s and %s", tag.Name, name))
		}
		return
	}
	app.addResources(&BackendTag{Name: name})
}

// UseBackend installs mod after claiming the single backend slot for name.
//
//	app.UseBackend(device.NameSoft, ParticlesModule{Config: cfg})
func (app *App) UseBackend(name string, mod Module) *App {
	ensureSingleBackend(app, name)
	app.Logger().Infof("Particle backend selected: %s", name)
	app.UseModules(mod)
	return app
}
