package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Loop is the default [Engine]. Every registered transfer runs its
// attempt on its own goroutine and is handed back through Perform.
type Loop struct {
	mu       sync.Mutex
	wg       sync.WaitGroup
	runs     map[uint64]*run
	finished []Transfer
	notify   chan struct{}
	closed   bool

	maxTransfers int
	logger       *slog.Logger
}

type run struct {
	t        Transfer
	cancel   context.CancelFunc
	running  bool
	finished bool
}

// New returns a ready to use Loop.
func New(optFns ...Option) (*Loop, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}

	return &Loop{
		runs:         make(map[uint64]*run),
		notify:       make(chan struct{}, 1),
		maxTransfers: opts.maxTransfers,
		logger:       opts.logger,
	}, nil
}

// Add registers t and starts its attempt. It fails with an error
// wrapping [ErrRegistration] when the loop is closed, t is already
// registered or the loop is at capacity.
func (l *Loop) Add(ctx context.Context, t Transfer) error {
	if t == nil {
		return fmt.Errorf("%w: nil transfer", ErrRegistration)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := t.TransferID()
	switch {
	case l.closed:
		return fmt.Errorf("%w: %w", ErrRegistration, ErrClosed)
	case l.runs[id] != nil:
		return fmt.Errorf("%w: transfer %d already registered", ErrRegistration, id)
	case l.maxTransfers > 0 && len(l.runs) >= l.maxTransfers:
		return fmt.Errorf("%w: capacity of %d transfers reached", ErrRegistration, l.maxTransfers)
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &run{t: t, cancel: cancel, running: true}
	l.runs[id] = r

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		t.Perform(ctx)
		l.complete(r)
	}()

	return nil
}

func (l *Loop) complete(r *run) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r.running = false
	if l.runs[r.t.TransferID()] != r {
		return
	}

	r.finished = true
	l.finished = append(l.finished, r.t)

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Remove deregisters t. A transfer still running is cancelled and its
// completion is dropped.
func (l *Loop) Remove(t Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := t.TransferID()
	r, ok := l.runs[id]
	if !ok || r.t != t {
		return fmt.Errorf("%w: %d", ErrNotRegistered, id)
	}

	delete(l.runs, id)
	r.cancel()

	if r.finished {
		for i, f := range l.finished {
			if f == t {
				l.finished = append(l.finished[:i], l.finished[i+1:]...)
				break
			}
		}
	}

	return nil
}

// Perform returns the transfers that finished since the last call. It
// never blocks.
func (l *Loop) Perform() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := l.finished
	l.finished = nil

	return out
}

// Wait blocks until a transfer finished, the timeout passed or nothing
// is running. It returns the number of finished transfers ready to be
// collected by Perform.
func (l *Loop) Wait(timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		l.mu.Lock()
		closed, ready, running := l.closed, len(l.finished), l.inFlight()
		l.mu.Unlock()

		switch {
		case closed:
			return 0, ErrClosed
		case ready > 0 || running == 0:
			return ready, nil
		}

		select {
		case <-l.notify:
		case <-timer.C:
			l.mu.Lock()
			defer l.mu.Unlock()
			return len(l.finished), nil
		}
	}
}

// Len returns the number of registered transfers.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.runs)
}

func (l *Loop) inFlight() int {
	var n int
	for _, r := range l.runs {
		if r.running {
			n++
		}
	}
	return n
}

// Close cancels every registered transfer and waits for their
// goroutines to return. Transfers not yet collected are dropped.
func (l *Loop) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true

	var pending int
	for id, r := range l.runs {
		if r.running {
			pending++
		}
		r.cancel()
		delete(l.runs, id)
	}
	l.finished = nil
	l.mu.Unlock()

	if pending > 0 {
		l.logger.Warn("closing engine with running transfers", "count", pending)
	}

	l.wg.Wait()

	return nil
}

var _ Engine = (*Loop)(nil)

