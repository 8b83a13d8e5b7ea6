package particles

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockResource1 struct {
	name string
}
type MockResource2 struct {
	name string
}

func NewMockResource1(name string) *MockResource1 {
	return &MockResource1{name: name}
}
func NewMockResource2(name string) *MockResource2 {
	return &MockResource2{name: name}
}

func TestApp_changeState(t *testing.T) {
	app := &App{
		stateful:     true,
		initialState: 1,
		state:        1,
		finalState:   2,
	}

	// Test changing state
	app.changeState(2)
	if app.nextState != State(2) {
		t.Errorf("The nextState should be set correctly.")
	}
	if !app.stateTransitioning {
		t.Errorf("The stateTransitioning flag should be true.")
	}

	// Test executing state change
	app.executeChangeState(2)
	if app.state != State(2) {
		t.Errorf("The app state should change correctly.")
	}
}

func TestApp_addResources(t *testing.T) {
	// Test setup
	app := &App{
		resources: make(map[reflect.Type]any),
	}

	// Add a resource
	resource1 := NewMockResource1("Resource1")
	app.addResources(resource1)

	// Check that the resource was added
	assert.Contains(t, app.resources, reflect.TypeOf(resource1).Elem(), "Resource1 should be in resources map.")

	// Expect panic when trying to add the same type of resource again
	require.PanicsWithValue(t, fmt.Sprintf("%s is already in resources", reflect.TypeOf(resource1)), func() {
		app.addResources(resource1) // Try adding resource1 again, should panic
	})

	// Add a resource
	resource2 := NewMockResource2("Resource2")
	app.addResources(resource2)

	// Check that the resource was added
	assert.Contains(t, app.resources, reflect.TypeOf(resource2).Elem(), "Resource2 should be in resources map.")
}

type counter struct{ n int }

func TestApp_RunFramesInjectsResources(t *testing.T) {
	app := NewAppBuilder().Build()
	app.addResources(&counter{})
	app.UseSystem(System(func(c *counter) { c.n++ }))

	assert.Equal(t, 3, app.RunFrames(3))
	c, ok := Resource[counter](app)
	require.True(t, ok)
	assert.Equal(t, 3, c.n)
	assert.Equal(t, uint64(3), app.Frames())
}

func TestApp_StagesRunInOrder(t *testing.T) {
	app := NewAppBuilder().Build()
	var order []string
	custom := Stage{Name: "Custom", UpdateType: DynamicUpdate}
	app.UseStage(custom, AfterStage(Update))

	app.UseSystem(System(func() { order = append(order, "render") }).InStage(Render))
	app.UseSystem(System(func() { order = append(order, "custom") }).InStage(custom))
	app.UseSystem(System(func() { order = append(order, "update") }))
	app.UseSystem(System(func() { order = append(order, "prelude") }).InStage(Prelude))

	app.RunFrames(1)
	assert.Equal(t, []string{"prelude", "update", "custom", "render"}, order)
}

func TestApp_QuitStopsRunAndCloses(t *testing.T) {
	app := NewAppBuilder().Build()
	closed := []int{}
	cmd := app.Commands()
	cmd.OnClose(func() { closed = append(closed, 1) })
	cmd.OnClose(func() { closed = append(closed, 2) })

	frames := 0
	app.UseSystem(System(func(cmd *Commands) {
		frames++
		if frames == 5 {
			cmd.Quit()
		}
	}))

	app.Run()
	assert.Equal(t, 5, frames)
	assert.Equal(t, []int{2, 1}, closed)
}

func TestApp_StatefulSystems(t *testing.T) {
	const (
		menu State = iota
		playing
		done
	)
	app := NewAppBuilder().UseStates(menu, done).Build()
	var log []string
	app.UseSystem(System(func(cmd *Commands) {
		log = append(log, "menu")
		cmd.ChangeState(playing)
	}).InState(OnExecute(menu)))
	app.UseSystem(System(func() { log = append(log, "enter-playing") }).InState(OnEnter(playing)))
	app.UseSystem(System(func(cmd *Commands) {
		log = append(log, "playing")
		cmd.ChangeState(done)
	}).InState(OnExecute(playing)))
	app.UseSystem(System(func() { log = append(log, "exit-done") }).InState(OnExit(done)))

	app.Run()
	assert.Equal(t, []string{"menu", "enter-playing", "playing", "exit-done"}, log)
}

func TestApp_UnresolvedDependencyPanics(t *testing.T) {
	app := NewAppBuilder().Build()
	app.UseSystem(System(func(c *counter) {}))
	assert.Panics(t, func() { app.RunFrames(1) })
}

func TestApp_StatefulSystemInStatelessAppPanics(t *testing.T) {
	app := NewAppBuilder().Build()
	assert.Panics(t, func() {
		app.UseSystem(System(func() {}).InState(OnEnter(1)))
	})
}
