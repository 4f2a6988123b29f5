package supervisor

// State is the lifecycle position of a supervised child.
type State int32

const (
	NoProcess State = iota
	Running
	Terminating
)

func (s State) String() string {
	switch s {
	case NoProcess:
		return "no_process"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	default:
		return "unknown"
	}
}
