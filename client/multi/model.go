package multi

import (
	"fmt"
	"time"

	"github.com/adamwoolhether/httpmulti/client/transfer"
)

const (
	// DefaultConcurrency is the ceiling used when none is configured.
	DefaultConcurrency = 25
	// DefaultWaitTimeout bounds one blocking wait on the engine.
	DefaultWaitTimeout = time.Second
	// DefaultFallbackSleep is slept when the engine's wait fails.
	DefaultFallbackSleep = 250 * time.Microsecond
)

// Defaults are applied at promotion to every handle that has not set
// the corresponding callback or retry policy itself.
type Defaults = transfer.Defaults

// EngineRegistrationError is returned by [Dispatcher.Start] when the
// engine refuses a transfer. It aborts the run.
type EngineRegistrationError struct {
	TransferID uint64
	Err        error
}

func (e *EngineRegistrationError) Error() string {
	return fmt.Sprintf("registering transfer %d: %v", e.TransferID, e.Err)
}

func (e *EngineRegistrationError) Unwrap() error { return e.Err }
