package engine_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamwoolhether/httpmulti/client/engine"
)

type fakeTransfer struct {
	id      uint64
	release chan struct{}
	done    atomic.Bool
	ctxErr  atomic.Value
}

func newTransfer(id uint64, blocking bool) *fakeTransfer {
	t := &fakeTransfer{id: id}
	if blocking {
		t.release = make(chan struct{})
	}
	return t
}

func (t *fakeTransfer) TransferID() uint64 { return t.id }

func (t *fakeTransfer) Perform(ctx context.Context) {
	if t.release != nil {
		select {
		case <-t.release:
		case <-ctx.Done():
			t.ctxErr.Store(ctx.Err())
		}
	}
	t.done.Store(true)
}

func newLoop(t *testing.T, opts ...engine.Option) *engine.Loop {
	t.Helper()

	opts = append([]engine.Option{engine.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	l, err := engine.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	return l
}

func collect(t *testing.T, l *engine.Loop, want int) []engine.Transfer {
	t.Helper()

	var got []engine.Transfer
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		_, err := l.Wait(100 * time.Millisecond)
		require.NoError(t, err)
		got = append(got, l.Perform()...)
	}
	require.Len(t, got, want)

	return got
}

func TestLoop_RunsAndCollects(t *testing.T) {
	l := newLoop(t)

	transfers := []*fakeTransfer{newTransfer(1, false), newTransfer(2, false), newTransfer(3, false)}
	for _, tr := range transfers {
		require.NoError(t, l.Add(t.Context(), tr))
	}

	got := collect(t, l, len(transfers))
	assert.Equal(t, 3, l.Len(), "finished transfers stay registered until removed")

	for _, tr := range got {
		require.NoError(t, l.Remove(tr))
	}
	assert.Equal(t, 0, l.Len())

	for _, tr := range transfers {
		assert.True(t, tr.done.Load())
	}
}

func TestLoop_RegistrationErrors(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		l := newLoop(t)
		tr := newTransfer(1, true)
		defer close(tr.release)

		require.NoError(t, l.Add(t.Context(), tr))
		assert.ErrorIs(t, l.Add(t.Context(), newTransfer(1, false)), engine.ErrRegistration)
	})

	t.Run("capacity", func(t *testing.T) {
		l := newLoop(t, engine.WithMaxTransfers(1))
		first := newTransfer(1, false)

		require.NoError(t, l.Add(t.Context(), first))
		assert.ErrorIs(t, l.Add(t.Context(), newTransfer(2, false)), engine.ErrRegistration)

		collect(t, l, 1)
		require.NoError(t, l.Remove(first))
		assert.NoError(t, l.Add(t.Context(), newTransfer(2, false)))
	})

	t.Run("closed", func(t *testing.T) {
		l := newLoop(t)
		require.NoError(t, l.Close())

		err := l.Add(t.Context(), newTransfer(1, false))
		assert.ErrorIs(t, err, engine.ErrRegistration)
		assert.ErrorIs(t, err, engine.ErrClosed)
	})

	t.Run("nil", func(t *testing.T) {
		l := newLoop(t)
		assert.ErrorIs(t, l.Add(t.Context(), nil), engine.ErrRegistration)
	})
}

func TestLoop_WaitTimesOut(t *testing.T) {
	l := newLoop(t)
	tr := newTransfer(1, true)
	require.NoError(t, l.Add(t.Context(), tr))

	start := time.Now()
	n, err := l.Wait(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	close(tr.release)
	collect(t, l, 1)
}

func TestLoop_WaitWithNothingRunning(t *testing.T) {
	l := newLoop(t)

	start := time.Now()
	n, err := l.Wait(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLoop_RemoveCancelsRunning(t *testing.T) {
	l := newLoop(t)
	tr := newTransfer(1, true)
	require.NoError(t, l.Add(t.Context(), tr))

	require.NoError(t, l.Remove(tr))
	require.NoError(t, l.Close())

	assert.Equal(t, context.Canceled, tr.ctxErr.Load())
	assert.Empty(t, l.Perform(), "a removed transfer is never reported")
	assert.ErrorIs(t, l.Remove(tr), engine.ErrNotRegistered)
}

func TestLoop_CloseWaitsForTransfers(t *testing.T) {
	l := newLoop(t)
	tr := newTransfer(1, true)
	require.NoError(t, l.Add(t.Context(), tr))

	require.NoError(t, l.Close())
	assert.True(t, tr.done.Load())

	_, err := l.Wait(time.Millisecond)
	assert.ErrorIs(t, err, engine.ErrClosed)
}
