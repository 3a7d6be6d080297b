package core

// Action represents a semantic runner action, abstracted from physical key presses.
// Front ends map keys to actions; the session maps actions to engine inputs.
type Action int

const (
	ActionNone    Action = iota
	ActionJump           // Space, W, Up - jump (only when grounded)
	ActionSlide          // S, Down - slide under overhead obstacles
	ActionExit           // E - cash out safely inside a checkpoint window
	ActionPause          // P - pause the run inside a checkpoint window
	ActionForfeit        // X - give up the run and the locked stake
	ActionQuit           // Q, Ctrl+C - leave the front end
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionJump:
		return "Jump"
	case ActionSlide:
		return "Slide"
	case ActionExit:
		return "Exit"
	case ActionPause:
		return "Pause"
	case ActionForfeit:
		return "Forfeit"
	case ActionQuit:
		return "Quit"
	default:
		return "Unknown"
	}
}

// InputFrame represents the actions a player triggered during one simulation tick.
type InputFrame struct {
	// Actions maps action types to whether they were triggered this frame.
	Actions map[Action]bool
}

// NewInputFrame creates an empty input frame.
func NewInputFrame() InputFrame {
	return InputFrame{
		Actions: make(map[Action]bool),
	}
}

// Set marks an action as triggered for this frame.
func (f *InputFrame) Set(a Action) {
	if f.Actions == nil {
		f.Actions = make(map[Action]bool)
	}
	f.Actions[a] = true
}

// Has returns true if the given action was triggered this frame.
func (f InputFrame) Has(a Action) bool {
	if f.Actions == nil {
		return false
	}
	return f.Actions[a]
}

// Clear resets all actions for the next frame.
func (f *InputFrame) Clear() {
	for k := range f.Actions {
		delete(f.Actions, k)
	}
}

// Ordered returns the triggered actions in a fixed order.
// Map iteration order is random; anything that feeds the engine must not depend on it.
func (f InputFrame) Ordered() []Action {
	var out []Action
	for a := ActionJump; a <= ActionQuit; a++ {
		if f.Has(a) {
			out = append(out, a)
		}
	}
	return out
}
