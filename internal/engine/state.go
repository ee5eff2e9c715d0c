package engine

type State int

const (
	Uninitialized State = iota
	Idle
	Searching
	Pondering
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idle:
		return "idle"
	case Searching:
		return "searching"
	case Pondering:
		return "pondering"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

func (s State) busy() bool {
	return s == Searching || s == Pondering
}
