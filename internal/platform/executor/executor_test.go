package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

func newTestExecutor(rec *sleepRecorder, opts ...Option) *Executor {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSleep(rec.sleep),
		WithJitter(func(time.Duration) time.Duration { return 0 }),
	}
	return New(append(base, opts...)...)
}

func rateLimited() error {
	return &StatusError{StatusCode: 429, Message: "rate limited"}
}

func TestExecute_ReturnsResultWithoutWaiting(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec)

	got, err := Execute(context.Background(), e, func(ctx context.Context) (string, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Empty(t, rec.recorded())
}

func TestExecute_RetriesOnceThenSucceeds(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec, WithBaseBackoff(time.Second), WithRetryBuffer(500*time.Millisecond))

	calls := 0
	got, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, rateLimited()
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, calls)
	require.Len(t, rec.recorded(), 1)
	assert.Equal(t, 1500*time.Millisecond, rec.recorded()[0])
}

func TestExecute_StopsAfterMaxAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec, WithMaxAttempts(3), WithBaseBackoff(time.Second), WithRetryBuffer(0))

	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 503, Message: "unavailable"}
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls, "4回目の試行は行わない")
	assert.True(t, errors.Is(err, ErrTransientFailureExceeded))

	var exceeded *TransientFailureExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 3, exceeded.Attempts)
	assert.Contains(t, err.Error(), "3 attempts")

	// 1s, 2s の指数バックオフ
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.recorded())
}

func TestExecute_NonTransientErrorIsNotRetried(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec)

	boom := errors.New("boom")
	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.recorded())

	calls = 0
	_, err = Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		return 0, &StatusError{StatusCode: 400, Message: "bad request"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecute_SuggestedWaitTakesPrecedence(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec,
		WithBaseBackoff(time.Second),
		WithRetryBuffer(500*time.Millisecond),
		WithJitter(func(time.Duration) time.Duration { return 100 * time.Millisecond }),
	)

	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{StatusCode: 429, Message: "Rate limit reached. Please try again in 7.5s."}
		}
		return 1, nil
	})

	require.NoError(t, err)
	require.Len(t, rec.recorded(), 1)
	assert.Equal(t, 7500*time.Millisecond+500*time.Millisecond+100*time.Millisecond, rec.recorded()[0])
}

func TestExecute_WaitsForMinuteScaleSuggestion(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec, WithBaseBackoff(time.Second), WithRetryBuffer(0))

	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{StatusCode: 429, Message: "Rate limit reached. Please try again in 2m59.56s."}
		}
		return 1, nil
	})

	require.NoError(t, err)
	require.Len(t, rec.recorded(), 1)
	assert.GreaterOrEqual(t, rec.recorded()[0], 2*time.Minute+59560*time.Millisecond)
}

func TestExecute_ExponentialWinsOverSmallerSuggestion(t *testing.T) {
	rec := &sleepRecorder{}
	e := newTestExecutor(rec, WithBaseBackoff(2*time.Second), WithRetryBuffer(0))

	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &StatusError{StatusCode: 429, Message: "try again in 250ms"}
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.recorded())
}

func TestExecute_ConcurrencyBound(t *testing.T) {
	e := New(
		WithConcurrency(3),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.Do(context.Background(), func(ctx context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load())
	assert.Equal(t, 0, e.Status().InFlight)
}

func TestExecute_ContextCanceledWhileWaitingForSlot(t *testing.T) {
	e := New(WithConcurrency(1), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	started := make(chan struct{})
	block := make(chan struct{})
	go func() {
		_ = e.Do(context.Background(), func(ctx context.Context) error {
			close(started)
			<-block
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := e.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	close(block)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestExecutor_StateIsPerInstance(t *testing.T) {
	rec := &sleepRecorder{}
	first := newTestExecutor(rec, WithMinInterval(time.Second))
	second := newTestExecutor(rec, WithMinInterval(time.Second))

	require.NoError(t, first.Do(context.Background(), func(ctx context.Context) error { return nil }))

	assert.False(t, first.Status().LastCall.IsZero())
	assert.True(t, second.Status().LastCall.IsZero())

	// 別インスタンスの呼び出しは待機しない
	require.NoError(t, second.Do(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Empty(t, rec.recorded())
}

func TestSuggestedWait(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    time.Duration
		ok      bool
	}{
		{"groq seconds", "Rate limit reached for model. Please try again in 1.234s. Visit ...", 1234 * time.Millisecond, true},
		{"milliseconds", "please try again in 250ms", 250 * time.Millisecond, true},
		{"spelled seconds", "Service busy, retry in 3 seconds", 3 * time.Second, true},
		{"retry after", "retry after 2s", 2 * time.Second, true},
		{"groq minutes", "Rate limit reached for model. Please try again in 2m59.56s. Visit ...", 2*time.Minute + 59560*time.Millisecond, true},
		{"minutes and seconds", "Please try again in 1m2s.", time.Minute + 2*time.Second, true},
		{"hours", "Please try again in 1h0m3s", time.Hour + 3*time.Second, true},
		{"spelled minutes", "retry in 2 minutes", 2 * time.Minute, true},
		{"bare number", "retry after 5", 5 * time.Second, true},
		{"no hint", "internal server error", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SuggestedWait(tt.message)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&StatusError{StatusCode: 429}))
	assert.True(t, IsTransient(&StatusError{StatusCode: 503}))
	assert.False(t, IsTransient(&StatusError{StatusCode: 500}))
	assert.False(t, IsTransient(errors.New("plain")))
}
