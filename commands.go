package particles

// Commands is handed to modules and systems to mutate the App.
type Commands struct {
	app *App
}

func (cmd *Commands) ChangeState(newState State) *Commands {
	cmd.app.changeState(newState)
	return cmd
}

func (cmd *Commands) AddResources(resources ...any) *Commands {
	cmd.app.addResources(resources...)
	return cmd
}

func (cmd *Commands) UseSystem(system systemScheduleBuilder) *Commands {
	cmd.app.UseSystem(system)
	return cmd
}

// Quit stops Run after the current frame.
func (cmd *Commands) Quit() {
	cmd.app.quit = true
}

// OnClose registers fn to run when the App closes. Callbacks run in
// reverse order.
func (cmd *Commands) OnClose(fn func()) *Commands {
	cmd.app.closers = append(cmd.app.closers, fn)
	return cmd
}
