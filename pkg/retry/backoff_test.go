package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep は実際には待機せず、要求された待機時間を記録するのだ。
func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestNew(t *testing.T) {
	t.Run("ゼロ値はデフォルトで補完される", func(t *testing.T) {
		b, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultMaxRetries, b.maxRetries)
		assert.Equal(t, DefaultInitialDelay, b.initialDelay)
	})

	t.Run("負の値はエラー", func(t *testing.T) {
		_, err := New(Config{MaxRetries: -1})
		assert.Error(t, err)
		_, err = New(Config{InitialDelay: -time.Second})
		assert.Error(t, err)
	})
}

func TestBackoff_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は待機せずに結果を返す", func(t *testing.T) {
		var delays []time.Duration
		b, err := New(Config{}, WithSleep(recordSleep(&delays)))
		require.NoError(t, err)

		calls := 0
		got, err := Do(ctx, b, func(ctx context.Context) (string, error) {
			calls++
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("終端エラーは1回だけ実行してそのまま返す", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{}, WithSleep(recordSleep(&delays)))
		want := errors.New("invalid argument: bad image")

		calls := 0
		err := b.Run(ctx, func(ctx context.Context) error {
			calls++
			return want
		})

		assert.Same(t, want, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("レート制限が続く場合は maxRetries 回試行して指数的に待機する", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 3, InitialDelay: 100 * time.Millisecond}, WithSleep(recordSleep(&delays)))
		want := errors.New("429 Too Many Requests")

		calls := 0
		err := b.Run(ctx, func(ctx context.Context) error {
			calls++
			return want
		})

		assert.Same(t, want, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, delays)
	})

	t.Run("2回失敗した後に成功すれば成功値を返す", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 3}, WithSleep(recordSleep(&delays)))

		calls := 0
		got, err := Do(ctx, b, func(ctx context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("429 Too Many Requests")
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Len(t, delays, 2)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	})

	t.Run("retry N s が含まれる場合は N*1000+1000ms 待機する", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 3}, WithSleep(recordSleep(&delays)))

		_ = b.Run(ctx, func(ctx context.Context) error {
			return errors.New("Resource has been exhausted (e.g. check quota). Please retry in 7.25s.")
		})

		assert.Equal(t, []time.Duration{8 * time.Second, 8 * time.Second}, delays)
	})

	t.Run("retry in 0s の場合は1秒だけ待機する", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 3, InitialDelay: 5 * time.Second}, WithSleep(recordSleep(&delays)))

		_ = b.Run(ctx, func(ctx context.Context) error {
			return errors.New("429 please retry in 0s")
		})

		assert.Equal(t, []time.Duration{time.Second, time.Second}, delays)
	})

	t.Run("試行回数が多くても待機時間は負にならない", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 40, InitialDelay: time.Second}, WithSleep(recordSleep(&delays)))

		_ = b.Run(ctx, func(ctx context.Context) error { return errors.New("429") })

		require.Len(t, delays, 39)
		for i := 1; i < len(delays); i++ {
			assert.GreaterOrEqual(t, delays[i], delays[i-1], "retry %d", i+1)
		}
		assert.Positive(t, delays[len(delays)-1])
	})

	t.Run("待機処理のエラーはそのまま返す", func(t *testing.T) {
		want := errors.New("sleeper broken")
		b, _ := New(Config{MaxRetries: 3}, WithSleep(func(ctx context.Context, d time.Duration) error {
			return want
		}))

		calls := 0
		err := b.Run(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("429")
		})

		assert.Same(t, want, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("maxRetries=1 の場合は再試行しない", func(t *testing.T) {
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 1}, WithSleep(recordSleep(&delays)))

		calls := 0
		err := b.Run(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("rate limit exceeded")
		})

		assert.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, delays)
	})

	t.Run("待機中に ctx がキャンセルされたら ctx のエラーを返す", func(t *testing.T) {
		b, _ := New(Config{MaxRetries: 3, InitialDelay: time.Hour})
		cctx, cancel := context.WithCancel(ctx)

		calls := 0
		err := b.Run(cctx, func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("quota exceeded")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("OnRetry フックに試行番号と待機時間が渡される", func(t *testing.T) {
		type call struct {
			attempt int
			delay   time.Duration
		}
		var calls []call
		var delays []time.Duration
		b, _ := New(Config{MaxRetries: 3, InitialDelay: 10 * time.Millisecond},
			WithSleep(recordSleep(&delays)),
			WithOnRetry(func(attempt int, delay time.Duration) {
				calls = append(calls, call{attempt, delay})
			}),
		)

		_ = b.Run(ctx, func(ctx context.Context) error { return errors.New("429") })

		assert.Equal(t, []call{{1, 10 * time.Millisecond}, {2, 20 * time.Millisecond}}, calls)
	})
}

func TestSleep(t *testing.T) {
	t.Run("キャンセル済みの ctx では即座に戻る", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := Sleep(ctx, time.Minute)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("指定時間だけ待機する", func(t *testing.T) {
		start := time.Now()
		require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})
}
