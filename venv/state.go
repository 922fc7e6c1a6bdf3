package venv

// State is the lifecycle state of one isolated environment.
type State int

const (
	StateAbsent State = iota
	StateCreatedEmpty
	StateDependenciesInstalling
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreatedEmpty:
		return "created-empty"
	case StateDependenciesInstalling:
		return "dependencies-installing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ProgressFunc receives (index, total, label) before and after each
// dependency is installed. index is 1-based.
type ProgressFunc func(index, total int, label string)
