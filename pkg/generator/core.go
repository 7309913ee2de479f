package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/gemini-character-kit/pkg/illustration"
	"github.com/shouni/gemini-character-kit/pkg/retry"
	"google.golang.org/genai"
)

// CharacterGenerator は元画像の取得、モデルによる描写生成、画像生成URLの組み立てを順に行います。
// 呼び出しをまたいだ可変状態はキャッシュだけなので、複数の goroutine から共有できます。
type CharacterGenerator struct {
	fetcher  ImageFetcher
	aiClient ContentGenerator
	backoff  *retry.Backoff

	model      string
	pacing     time.Duration
	sleep      retry.SleepFunc
	cache      ImageCacher
	expiration time.Duration

	compress     bool
	quality      int
	maxDimension int

	standard    illustration.Endpoint
	highQuality illustration.Endpoint
}

// Option は CharacterGenerator の設定を変更します。
type Option func(*CharacterGenerator)

// WithModel は使用するモデル名を設定します。
func WithModel(model string) Option {
	return func(g *CharacterGenerator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithCache は取得済み元画像のキャッシュを設定します。nil の場合はキャッシュなしで動作します。
func WithCache(c ImageCacher, ttl time.Duration) Option {
	return func(g *CharacterGenerator) {
		g.cache = c
		g.expiration = ttl
	}
}

// WithPacing はバッチ処理で画像ごとに挟む待機時間を設定します。
func WithPacing(d time.Duration) Option {
	return func(g *CharacterGenerator) {
		if d >= 0 {
			g.pacing = d
		}
	}
}

// WithSleep はバッチの待機処理を差し替えます。
func WithSleep(fn retry.SleepFunc) Option {
	return func(g *CharacterGenerator) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithCompression はモデルへ送る前に画像を縮小して JPEG に再エンコードします。
func WithCompression(quality, maxDimension int) Option {
	return func(g *CharacterGenerator) {
		g.compress = true
		g.quality = quality
		g.maxDimension = maxDimension
	}
}

// WithEndpoints は画像生成エンドポイントを差し替えます。
func WithEndpoints(standard, highQuality illustration.Endpoint) Option {
	return func(g *CharacterGenerator) {
		g.standard = standard
		g.highQuality = highQuality
	}
}

// NewCharacterGenerator は依存関係を注入して CharacterGenerator を初期化します。
func NewCharacterGenerator(fetcher ImageFetcher, aiClient ContentGenerator, backoff *retry.Backoff, opts ...Option) (*CharacterGenerator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if backoff == nil {
		return nil, fmt.Errorf("backoff is required")
	}

	g := &CharacterGenerator{
		fetcher:     fetcher,
		aiClient:    aiClient,
		backoff:     backoff,
		model:       DefaultModel,
		pacing:      DefaultPacing,
		sleep:       retry.Sleep,
		quality:     75,
		standard:    illustration.Standard(),
		highQuality: illustration.HighResolution(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Model は使用中のモデル名を返します。
func (g *CharacterGenerator) Model() string {
	return g.model
}

// Ping はモデルへの疎通を確認し、応答テキストを返します。
func (g *CharacterGenerator) Ping(ctx context.Context) (string, error) {
	return g.generateText(ctx, []*genai.Part{{Text: pingPrompt}})
}
