package runner

import (
	"errors"
	"fmt"

	"github.com/torosent/pktbench/internal/pktgen"
)

var (
	// ErrTransmitterExited is returned when the background transmitter dies
	// between iterations.
	ErrTransmitterExited = pktgen.ErrTransmitterExited

	// ErrNoIterations is returned under the skip policy when every attempted
	// iteration failed.
	ErrNoIterations = errors.New("no iteration succeeded")
)

// IterationError ties a failure to the iteration that produced it.
type IterationError struct {
	Index int   `json:"index"`
	Err   error `json:"-"`
}

func (e *IterationError) Error() string {
	return fmt.Sprintf("iteration %d: %v", e.Index, e.Err)
}

func (e *IterationError) Unwrap() error {
	return e.Err
}
