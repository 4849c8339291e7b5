package promise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/adamwoolhether/httpmulti/client/multi"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

// ErrNoDispatcher is returned when a Promise was built without a dispatcher.
var ErrNoDispatcher = errors.New("promise has no dispatcher")

// State is the settlement state of a Promise.
type State int32

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrorSink receives the message of a run that failed during [Promise.Settle].
type ErrorSink interface {
	Log(msg string)
}

// SinkFunc adapts a function to [ErrorSink].
type SinkFunc func(msg string)

// Log calls f(msg).
func (f SinkFunc) Log(msg string) { f(msg) }

// Handler receives a finished transfer's response and the request that
// produced it. Either may be nil when the transfer never got that far.
type Handler func(resp *transfer.Response, req *http.Request)

// Promise settles once its dispatcher has run every queued transfer.
type Promise struct {
	d      *multi.Dispatcher
	state  atomic.Int32
	sink   ErrorSink
	logger *slog.Logger
}

// Option is a functional option for configuring a [Promise].
type Option func(*Promise)

// WithErrorSink routes failures seen by [Promise.Settle] to sink.
func WithErrorSink(sink ErrorSink) Option {
	return func(p *Promise) {
		p.sink = sink
	}
}

// WithLogger injects a custom [slog.Logger]. It receives failures seen
// by [Promise.Settle] when no sink is set.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Promise) {
		p.logger = logger
	}
}

// New returns a pending Promise over d.
func New(d *multi.Dispatcher, opts ...Option) *Promise {
	p := &Promise{d: d}
	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// Then registers onFulfilled as the dispatcher's default complete
// callback and onRejected as its default error callback, and returns a
// new pending Promise over the same dispatcher. A nil handler leaves
// the current default in place. Handles that set their own callbacks
// keep them, and the defaults apply only to handles promoted after the
// call.
func (p *Promise) Then(onFulfilled, onRejected Handler) *Promise {
	if p.d != nil {
		p.d.UpdateDefaults(func(def *multi.Defaults) {
			if onFulfilled != nil {
				def.OnComplete = adapt(onFulfilled)
			}
			if onRejected != nil {
				def.OnError = adapt(onRejected)
			}
		})
	}

	return &Promise{d: p.d, sink: p.sink, logger: p.logger}
}

func adapt(fn Handler) transfer.Callback {
	return func(h *transfer.Handle) {
		fn(h.Response(), h.Request())
	}
}

// Wait runs the dispatcher until it drains. The promise is fulfilled
// when the run succeeds; otherwise it is rejected and the error returned.
func (p *Promise) Wait(ctx context.Context) error {
	if err := p.run(ctx); err != nil {
		p.state.Store(int32(Rejected))
		return err
	}

	p.state.Store(int32(Fulfilled))
	return nil
}

// Settle runs the dispatcher like Wait but never returns the error: a
// failed run rejects the promise and its message goes to the error
// sink, or to the logger when no sink is set.
func (p *Promise) Settle(ctx context.Context) State {
	if err := p.Wait(ctx); err != nil {
		if p.sink != nil {
			p.sink.Log(err.Error())
		} else {
			p.logger.Error("promise rejected", "error", err)
		}
	}

	return p.State()
}

// State returns the current state. It is safe to call from any goroutine.
func (p *Promise) State() State {
	return State(p.state.Load())
}

func (p *Promise) run(ctx context.Context) error {
	if p.d == nil {
		return ErrNoDispatcher
	}

	return p.d.Start(ctx)
}
