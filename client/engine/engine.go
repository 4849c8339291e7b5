package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRegistration is wrapped by every error returned from [Engine.Add].
	ErrRegistration = errors.New("engine registration failed")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
	// ErrNotRegistered is returned by [Engine.Remove] for an unknown transfer.
	ErrNotRegistered = errors.New("transfer not registered")
)

// Transfer is one unit of work the engine can run. Perform executes a
// single attempt; the engine never retries on its own.
type Transfer interface {
	TransferID() uint64
	Perform(ctx context.Context)
}

// Engine multiplexes many transfers. Add starts a transfer, Perform
// collects the ones that finished since the last call without blocking,
// and Wait blocks until at least one has finished or the timeout passes.
// A transfer stays registered after it finishes until it is removed.
type Engine interface {
	Add(ctx context.Context, t Transfer) error
	Remove(t Transfer) error
	Perform() []Transfer
	Wait(timeout time.Duration) (int, error)
	Close() error
}
