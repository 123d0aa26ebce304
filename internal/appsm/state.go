package appsm

// State is one application mode. The machine starts in Init, runs in
// Processing, and parks in Config, which is terminal: leaving
// configuration mode is a process restart.
type State int

const (
	StateUndefined State = iota
	StateInit
	StateProcessing
	StateConfig
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateProcessing:
		return "processing"
	case StateConfig:
		return "config"
	default:
		return "undefined"
	}
}
