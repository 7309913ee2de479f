// Package retry はレート制限を考慮した指数バックオフ付きの再試行を提供します。
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second

	// retryHintBuffer はサーバー提示の待機時間に上乗せする余裕です。
	retryHintBuffer = time.Second

	// maxDelay は待機時間の上限です。指数的な増加はここで頭打ちになります。
	maxDelay = time.Duration(math.MaxInt64)
)

// Config は Backoff の設定です。ゼロ値の項目はデフォルト値で補完されます。
type Config struct {
	// MaxRetries は試行回数の上限（初回を含む）です。
	MaxRetries int
	// InitialDelay は初回再試行前の待機時間です。以降 InitialDelay * 2^attempt で増加します。
	InitialDelay time.Duration
	// MaxDelay は1回あたりの待機時間の上限です。0 の場合は上限なし。
	MaxDelay time.Duration
}

// SleepFunc は待機処理です。ctx がキャンセルされた場合はそのエラーを返します。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option は Backoff の挙動を変更します。
type Option func(*Backoff)

// WithSleep は待機処理を差し替えます。
func WithSleep(fn SleepFunc) Option {
	return func(b *Backoff) {
		if fn != nil {
			b.sleep = fn
		}
	}
}

// WithOnRetry は再試行のたびに呼ばれるフックを設定します。attempt は 1 始まりです。
func WithOnRetry(fn func(attempt int, delay time.Duration)) Option {
	return func(b *Backoff) {
		b.onRetry = fn
	}
}

// WithClassifier は分類関数を差し替えます。
func WithClassifier(fn func(error) Classification) Option {
	return func(b *Backoff) {
		if fn != nil {
			b.classify = fn
		}
	}
}

// Backoff はレート制限エラーのみを指数バックオフで再試行します。
// 再試行の状態は呼び出しごとに作り直すため、複数の goroutine から共有できます。
type Backoff struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
	sleep        SleepFunc
	onRetry      func(attempt int, delay time.Duration)
	classify     func(error) Classification
}

// New は設定を検証して Backoff を生成します。
func New(cfg Config, opts ...Option) (*Backoff, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be >= 1 (got %d)", cfg.MaxRetries)
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.InitialDelay < 0 {
		return nil, fmt.Errorf("initial delay must be > 0 (got %s)", cfg.InitialDelay)
	}
	if cfg.MaxDelay < 0 {
		return nil, fmt.Errorf("max delay must be >= 0 (got %s)", cfg.MaxDelay)
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = maxDelay
	}

	b := &Backoff{
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		maxDelay:     cfg.MaxDelay,
		sleep:        Sleep,
		classify:     Classify,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// MaxRetries は試行回数の上限を返します。
func (b *Backoff) MaxRetries() int {
	return b.maxRetries
}

// Run は op を実行し、レート制限エラーの場合のみ待機して再試行します。
// それ以外のエラーと、最終試行でのレート制限エラーはそのまま返します。
func (b *Backoff) Run(ctx context.Context, op func(ctx context.Context) error) error {
	policy := b.newPolicy()

	operation := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		c := b.classify(err)
		if !c.RateLimited() {
			return backoff.Permanent(err)
		}
		policy.hint = c
		return err
	}

	attempt := 0
	notify := func(_ error, delay time.Duration) {
		attempt++
		slog.InfoContext(ctx, "レート制限を検知しました。待機してから再試行します",
			"delay", delay,
			"retry", attempt,
			"max_retries", b.maxRetries,
		)
		if b.onRetry != nil {
			b.onRetry(attempt, delay)
		}
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := &sleepTimer{ctx: ctx, sleep: b.sleep, abort: cancel}

	err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(policy, rctx), notify, timer)
	if timer.err != nil {
		return timer.err
	}
	return err
}

// Do は値を返す op に対して Run と同じ再試行を行います。
func Do[T any](ctx context.Context, b *Backoff, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Run(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// newPolicy は揺らぎなしで倍々に増える待機列を、試行回数の上限付きで生成します。
func (b *Backoff) newPolicy() *hintBackOff {
	exp := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(b.initialDelay),
		backoff.WithRandomizationFactor(0),
		backoff.WithMultiplier(2),
		backoff.WithMaxInterval(b.maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	return &hintBackOff{delegate: backoff.WithMaxRetries(exp, uint64(b.maxRetries-1))}
}

// hintBackOff は直前のエラーにサーバー提示の待機時間があれば、指数バックオフの代わりにそれを使います。
type hintBackOff struct {
	delegate backoff.BackOff
	hint     Classification
}

func (h *hintBackOff) NextBackOff() time.Duration {
	next := h.delegate.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if h.hint.Hinted {
		return saturatingAdd(h.hint.RetryAfter, retryHintBuffer)
	}
	return next
}

func (h *hintBackOff) Reset() {
	h.hint = Classification{}
	h.delegate.Reset()
}

func saturatingAdd(a, b time.Duration) time.Duration {
	if a > maxDelay-b {
		return maxDelay
	}
	return a + b
}

// sleepTimer は backoff.Timer を SleepFunc で実装します。
// 待機が失敗した場合は abort で再試行ループを止め、そのエラーを err に残します。
type sleepTimer struct {
	ctx   context.Context
	sleep SleepFunc
	abort context.CancelFunc
	c     chan time.Time
	err   error
}

func (t *sleepTimer) Start(d time.Duration) {
	if t.c == nil {
		t.c = make(chan time.Time, 1)
	}
	if err := t.sleep(t.ctx, d); err != nil {
		t.err = err
		t.abort()
		return
	}
	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}

// Sleep は ctx を考慮して d だけ待機します。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
