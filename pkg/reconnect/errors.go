package reconnect

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrFailed is returned once every attempt has been used up
	ErrFailed = errors.New("reconnection failed")
	// ErrInProgress is returned when Recover is called while a recovery runs
	ErrInProgress = errors.New("reconnection already in progress")
)

// Attempt records one failed reconnection attempt
type Attempt struct {
	Number int
	At     time.Time
	Err    error
	Delay  time.Duration // wait that followed, 0 for the last attempt
}

// ExhaustedError carries the history of a recovery that ran out of attempts
type ExhaustedError struct {
	History []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s after %d attempts", ErrFailed, len(e.History))
	for _, a := range e.History {
		fmt.Fprintf(&b, "; #%d: %v", a.Number, a.Err)
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() error {
	return ErrFailed
}
