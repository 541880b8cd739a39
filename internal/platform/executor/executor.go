package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency は同時実行数のデフォルト値
	DefaultConcurrency = 3
	// DefaultMaxAttempts は一時的エラー時の最大試行回数のデフォルト値
	DefaultMaxAttempts = 3
	// DefaultBaseBackoff は Exponential Backoff の基底時間
	DefaultBaseBackoff = time.Second
	// DefaultRetryBuffer は待機時間に加算する固定バッファ
	DefaultRetryBuffer = 500 * time.Millisecond
	// DefaultMaxJitter はランダムジッターの上限
	DefaultMaxJitter = 250 * time.Millisecond
)

// Executor は外部サービス呼び出しを並列度とリトライポリシーの下で実行する。
// 状態（実行中数・最終呼び出し時刻）はインスタンスごとに保持し、
// 外部サービスのクライアントごとに1つ生成して所有させる。
type Executor struct {
	sem         *semaphore.Weighted
	concurrency int
	maxAttempts int
	baseBackoff time.Duration
	retryBuffer time.Duration
	maxJitter   time.Duration
	minInterval time.Duration
	logger      *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration

	mu       sync.Mutex
	inFlight int
	waiting  int
	lastCall time.Time
}

// Option は Executor のオプション設定
type Option func(*Executor)

// WithConcurrency は同時実行数を設定する
func WithConcurrency(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMaxAttempts は最大試行回数（初回を含む）を設定する
func WithMaxAttempts(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithBaseBackoff は Exponential Backoff の基底時間を設定する
func WithBaseBackoff(d time.Duration) Option {
	return func(e *Executor) {
		e.baseBackoff = d
	}
}

// WithRetryBuffer は待機時間に加算する固定バッファを設定する
func WithRetryBuffer(d time.Duration) Option {
	return func(e *Executor) {
		e.retryBuffer = d
	}
}

// WithMaxJitter はランダムジッターの上限を設定する
func WithMaxJitter(d time.Duration) Option {
	return func(e *Executor) {
		e.maxJitter = d
	}
}

// WithMinInterval は呼び出し開始の最小間隔を設定する（0で無効）
func WithMinInterval(d time.Duration) Option {
	return func(e *Executor) {
		e.minInterval = d
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithSleep は待機処理を差し替える（テスト用）
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithJitter はジッター生成を差し替える（テスト用）
func WithJitter(jitter func(max time.Duration) time.Duration) Option {
	return func(e *Executor) {
		e.jitter = jitter
	}
}

// New は新しい Executor を作成する
func New(opts ...Option) *Executor {
	e := &Executor{
		concurrency: DefaultConcurrency,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: DefaultBaseBackoff,
		retryBuffer: DefaultRetryBuffer,
		maxJitter:   DefaultMaxJitter,
		logger:      slog.Default(),
		sleep:       sleepContext,
		jitter:      randomJitter,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.sem = semaphore.NewWeighted(int64(e.concurrency))
	return e
}

// Execute は task を Executor の管理下で実行し、その結果を返す。
// 枠が埋まっている場合は FIFO で待機し、枠を取得してから初回の試行を開始する。
// 一時的エラー（429/503）は最大試行回数まで再試行し、それ以外のエラーは即座に返す。
func Execute[T any](ctx context.Context, e *Executor, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := e.acquire(ctx); err != nil {
		return zero, err
	}
	defer e.release()

	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := e.throttle(ctx); err != nil {
			return zero, err
		}

		result, err := task(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !IsTransient(err) {
			return zero, err
		}
		if attempt == e.maxAttempts {
			break
		}

		wait := e.backoff(attempt, err)
		e.logger.Warn("一時的エラーのため再試行します",
			"attempt", attempt,
			"maxAttempts", e.maxAttempts,
			"wait", wait,
			"error", err,
		)
		if err := e.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}

	return zero, &TransientFailureExceededError{Attempts: e.maxAttempts, Err: lastErr}
}

// Do は戻り値を持たない task を実行する
func (e *Executor) Do(ctx context.Context, task func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	return err
}

// backoff は attempt 回目の失敗後の待機時間を計算する。
// max(指数バックオフ, エラーが示す待機時間) + 固定バッファ + ジッター
func (e *Executor) backoff(attempt int, err error) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * e.baseBackoff
	if suggested, ok := SuggestedWait(err.Error()); ok && suggested > wait {
		wait = suggested
	}
	wait += e.retryBuffer
	if e.maxJitter > 0 {
		wait += e.jitter(e.maxJitter)
	}
	return wait
}

func (e *Executor) acquire(ctx context.Context) error {
	e.mu.Lock()
	e.waiting++
	e.mu.Unlock()

	err := e.sem.Acquire(ctx, 1)

	e.mu.Lock()
	e.waiting--
	if err == nil {
		e.inFlight++
	}
	e.mu.Unlock()
	return err
}

func (e *Executor) release() {
	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()
	e.sem.Release(1)
}

// throttle は minInterval が設定されている場合、前回の呼び出し開始から間隔を空ける
func (e *Executor) throttle(ctx context.Context) error {
	if e.minInterval <= 0 {
		return nil
	}

	e.mu.Lock()
	now := time.Now()
	next := e.lastCall.Add(e.minInterval)
	wait := next.Sub(now)
	if wait > 0 {
		e.lastCall = next
	} else {
		e.lastCall = now
	}
	e.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	return e.sleep(ctx, wait)
}

// Status は現在の状態を返す（デバッグ・監視用）
func (e *Executor) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Status{
		Concurrency: e.concurrency,
		MaxAttempts: e.maxAttempts,
		InFlight:    e.inFlight,
		Waiting:     e.waiting,
		LastCall:    e.lastCall,
	}
}

// Status は Executor の状態
type Status struct {
	Concurrency int       `json:"concurrency"`
	MaxAttempts int       `json:"maxAttempts"`
	InFlight    int       `json:"inFlight"`
	Waiting     int       `json:"waiting"`
	LastCall    time.Time `json:"lastCall"`
}

// String はステータスを文字列表現で返す
func (s Status) String() string {
	return fmt.Sprintf(
		"Executor: concurrency=%d, maxAttempts=%d, inFlight=%d, waiting=%d",
		s.Concurrency,
		s.MaxAttempts,
		s.InFlight,
		s.Waiting,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	return time.Duration(rand.Int64N(int64(max) + 1))
}
