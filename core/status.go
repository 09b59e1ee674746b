package core

// Status is the three-valued outcome of driving a step (or the whole
// pipeline) forward. It is a closed enum: callers switch exhaustively on it.
type Status int

const (
	// StatusFinished means the requested work is complete. Calling again is a
	// no-op that reports StatusFinished without consuming budget.
	StatusFinished Status = iota

	// StatusNotFinished means progress was made but work remains; call again
	// with fresh budget.
	StatusNotFinished

	// StatusInsufficientResources means the call could not afford even one
	// unit of work and no state was mutated. Recoverable: call again with a
	// larger budget.
	StatusInsufficientResources
)

func (s Status) String() string {
	switch s {
	case StatusFinished:
		return "finished"
	case StatusNotFinished:
		return "not-finished"
	case StatusInsufficientResources:
		return "insufficient-resources"
	default:
		return "unknown"
	}
}
