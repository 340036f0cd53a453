package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPhaseFailed matches every PhaseError.
	ErrPhaseFailed = errors.New("phase failed")
	// ErrTimeout matches a PhaseError whose phase hit its deadline.
	ErrTimeout = errors.New("phase timed out")
	// ErrRunIDNotFound is returned when a successful run's output does not
	// announce a run identifier.
	ErrRunIDNotFound = errors.New("no run id found in agent output")
)

// PhaseError is a compile or run phase that exited non-zero, timed out or
// could not be started. Output holds whatever the process wrote.
type PhaseError struct {
	Phase    Phase
	ExitCode int
	TimedOut bool
	Output   string
	Err      error
}

func (e *PhaseError) Error() string {
	var b strings.Builder
	switch {
	case e.TimedOut:
		fmt.Fprintf(&b, "%s phase timed out", e.Phase)
	case e.Err != nil:
		fmt.Fprintf(&b, "%s phase failed: %v", e.Phase, e.Err)
	default:
		fmt.Fprintf(&b, "%s phase failed with exit code %d", e.Phase, e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString(":\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for the package sentinels.
func (e *PhaseError) Is(target error) bool {
	switch target {
	case ErrPhaseFailed:
		return true
	case ErrTimeout:
		return e.TimedOut
	}
	return false
}

// RunIDError carries the verbatim run output that lacked a usable run
// identifier. ID is set when one matched but was not a local path.
type RunIDError struct {
	Pattern string
	Output  string
	ID      string
}

func (e *RunIDError) Error() string {
	msg := fmt.Sprintf("%v (pattern %s)", ErrRunIDNotFound, e.Pattern)
	if e.ID != "" {
		msg = fmt.Sprintf("%v: %q is not a local path", ErrRunIDNotFound, e.ID)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ":\n" + out
	}
	return msg
}

func (e *RunIDError) Is(target error) bool {
	return target == ErrRunIDNotFound
}
