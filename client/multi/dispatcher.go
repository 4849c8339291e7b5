package multi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpmulti/client/engine"
	"github.com/adamwoolhether/httpmulti/client/transfer"
)

const instrumentationName = "github.com/adamwoolhether/httpmulti/client/multi"

// nextID issues handle IDs. IDs are unique across dispatchers.
var nextID atomic.Uint64

// Dispatcher runs many transfers with a bounded number active at once.
// Handles wait in a FIFO queue until promoted into the active set; the
// run loop, retries and every callback execute on the goroutine that
// called [Dispatcher.Start].
type Dispatcher struct {
	mu          sync.Mutex
	queue       []*transfer.Handle
	active      map[uint64]*transfer.Handle
	concurrency int
	defaults    Defaults

	running atomic.Bool

	engine        engine.Engine
	client        *http.Client
	logger        *slog.Logger
	tracer        trace.Tracer
	waitTimeout   time.Duration
	fallbackSleep time.Duration
}

// New returns a Dispatcher configured by optFns.
func New(optFns ...Option) (*Dispatcher, error) {
	opts := options{
		concurrency:   DefaultConcurrency,
		waitTimeout:   DefaultWaitTimeout,
		fallbackSleep: DefaultFallbackSleep,
	}

	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}

	return &Dispatcher{
		active:        make(map[uint64]*transfer.Handle),
		concurrency:   opts.concurrency,
		defaults:      opts.defaults,
		engine:        opts.engine,
		client:        opts.client,
		logger:        opts.logger,
		tracer:        opts.tracer,
		waitTimeout:   opts.waitTimeout,
		fallbackSleep: opts.fallbackSleep,
	}, nil
}

// Enqueue appends handles to the queue in order. Each one gets the next
// ID and becomes owned by the dispatcher. Nothing is sent until Start.
// A finalized or already owned handle is rejected along with the rest
// of the batch after it.
func (d *Dispatcher) Enqueue(handles ...*transfer.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, h := range handles {
		if h == nil {
			return errors.New("enqueue: nil handle")
		}
		if err := h.Claim(nextID.Add(1)); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		d.queue = append(d.queue, h)
	}

	return nil
}

// SetConcurrency changes the ceiling from the next promotion on.
// Handles already active above a lowered ceiling keep running.
func (d *Dispatcher) SetConcurrency(n int) error {
	if n < 1 {
		return errors.New("concurrency must be at least 1")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.concurrency = n

	return nil
}

// SetDefaults replaces the defaults applied at promotion.
func (d *Dispatcher) SetDefaults(def Defaults) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults = def
}

// UpdateDefaults changes the defaults applied at promotion in place.
func (d *Dispatcher) UpdateDefaults(fn func(*Defaults)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.defaults)
}

// Len returns the number of queued and active handles.
func (d *Dispatcher) Len() (queued, active int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue), len(d.active)
}

// Running reports whether Start is executing.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Start runs every queued handle to completion and returns once the
// queue and the active set are both empty. A call made while another
// Start is running returns nil immediately.
//
// ctx parents the run's span but does not cancel it; requests honour
// their own handle's context and are cancelled when the engine removes
// them. Failed transfers are reported through their callbacks and
// never end the run. An engine registration failure does: promotion
// stops, transfers already running are finished, and the unstarted
// handles stay queued for a later Start.
func (d *Dispatcher) Start(ctx context.Context) (err error) {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Debug("dispatcher already running")
		return nil
	}
	defer d.running.Store(false)

	queued, _ := d.Len()
	ctx, span := d.tracer.Start(ctx, "multi.start", trace.WithAttributes(
		attribute.Int("multi.queued", queued),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	eng := d.engine
	if eng == nil {
		loop, err := engine.New(engine.WithLogger(d.logger))
		if err != nil {
			return fmt.Errorf("creating engine: %w", err)
		}
		defer func() {
			if err := loop.Close(); err != nil {
				d.logger.Error("closing engine", "error", err)
			}
		}()
		eng = loop
	}

	r := &run{
		d:   d,
		ctx: context.WithoutCancel(ctx),
		eng: eng,
		env: transfer.Env{Client: d.client, Logger: d.logger, Tracer: d.tracer},
	}

	d.logger.Debug("dispatcher started", "queued", queued)
	err = r.loop()
	d.logger.Debug("dispatcher finished", "transfers", r.finalized, "error", err)

	return err
}

// run is the state of one Start call.
type run struct {
	d   *Dispatcher
	ctx context.Context
	eng engine.Engine
	env transfer.Env

	// fatal is the first registration error; once set nothing new is
	// registered and the loop only drains what is running.
	fatal     error
	finalized int
}

func (r *run) loop() error {
	r.promote()

	for r.pending() {
		if _, err := r.eng.Wait(r.d.waitTimeout); err != nil {
			r.d.logger.Debug("engine wait failed", "error", err)
			time.Sleep(r.d.fallbackSleep)
		}

		for _, t := range r.eng.Perform() {
			r.handle(t)
		}
	}

	return r.fatal
}

// pending reports whether the loop has more work: running transfers,
// or queued ones while registration still works.
func (r *run) pending() bool {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	return len(r.d.active) > 0 || (r.fatal == nil && len(r.d.queue) > 0)
}

func (r *run) handle(t engine.Transfer) {
	r.d.mu.Lock()
	h, ok := r.d.active[t.TransferID()]
	r.d.mu.Unlock()
	if !ok {
		r.d.logger.Warn("engine reported unknown transfer", "transfer", t.TransferID())
		return
	}

	if r.fatal == nil && h.AttemptRetry() {
		r.d.logger.Info("retrying transfer",
			"transfer", h.ID(),
			"attempt", h.Attempts(),
			"kind", h.Kind(),
			"code", h.ErrorCode(),
		)

		h.RunBeforeSend()
		if err := r.eng.Remove(h); err != nil {
			r.d.logger.Error("deregistering transfer for retry", "transfer", h.ID(), "error", err)
		}
		if err := r.eng.Add(r.ctx, h); err != nil {
			r.d.mu.Lock()
			delete(r.d.active, h.ID())
			r.d.queue = slices.Insert(r.d.queue, 0, h)
			r.d.mu.Unlock()
			r.abort(h, err)
		}
		return
	}

	h.Finalize()
	r.finalized++
	r.d.logger.Debug("transfer finished",
		"transfer", h.ID(),
		"attempts", h.Attempts(),
		"status", h.StatusCode(),
		"kind", h.Kind(),
	)

	r.d.mu.Lock()
	delete(r.d.active, h.ID())
	r.d.mu.Unlock()

	r.promote()

	if err := r.eng.Remove(h); err != nil {
		r.d.logger.Error("deregistering finished transfer", "transfer", h.ID(), "error", err)
	}
}

// promote moves queued handles into the active set until the ceiling is
// reached, registering each with the engine.
func (r *run) promote() {
	for r.fatal == nil {
		r.d.mu.Lock()
		if len(r.d.queue) == 0 || len(r.d.active) >= r.d.concurrency {
			r.d.mu.Unlock()
			return
		}
		h := r.d.queue[0]
		r.d.queue = r.d.queue[1:]
		r.d.active[h.ID()] = h
		defaults := r.d.defaults
		r.d.mu.Unlock()

		h.ApplyDefaults(defaults)
		h.Open(r.env)
		h.RunBeforeSend()

		if err := r.eng.Add(r.ctx, h); err != nil {
			r.d.mu.Lock()
			delete(r.d.active, h.ID())
			r.d.queue = slices.Insert(r.d.queue, 0, h)
			r.d.mu.Unlock()
			r.abort(h, err)
			return
		}

		r.d.logger.Debug("transfer promoted", "transfer", h.ID(), "url", h.URL())
	}
}

func (r *run) abort(h *transfer.Handle, err error) {
	r.d.logger.Error("engine rejected transfer, aborting run", "transfer", h.ID(), "error", err)
	r.fatal = &EngineRegistrationError{TransferID: h.ID(), Err: err}
}
