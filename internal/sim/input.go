package sim

// InputKind names a player or session signal applied to a run.
type InputKind string

const (
	InputJump    InputKind = "jump"
	InputSlide   InputKind = "slide"
	InputExit    InputKind = "exit"
	InputPause   InputKind = "pause"
	InputResume  InputKind = "resume"
	InputForfeit InputKind = "forfeit"
)

// Valid reports whether k is a known input kind.
func (k InputKind) Valid() bool {
	switch k {
	case InputJump, InputSlide, InputExit, InputPause, InputResume, InputForfeit:
		return true
	}
	return false
}

// Input is a tick-tagged signal. A run's ordered inputs, together with its
// seed and parameters, fully determine its outcome.
type Input struct {
	Tick uint64    `json:"tick"`
	Kind InputKind `json:"kind"`
}
