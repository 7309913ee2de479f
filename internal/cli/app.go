// Package cli は character-kit コマンドの cobra コマンド定義と依存関係の組み立てを担当します。
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"

	"github.com/shouni/gemini-character-kit/internal/config"
	"github.com/shouni/gemini-character-kit/pkg/fetcher"
	"github.com/shouni/gemini-character-kit/pkg/generator"
	"github.com/shouni/gemini-character-kit/pkg/retry"
	"github.com/shouni/gemini-character-kit/pkg/storage"
)

// Generator はコマンドから利用する生成処理です。*generator.CharacterGenerator が満たします。
type Generator interface {
	generator.CharacterService
	Ping(ctx context.Context) (string, error)
	Model() string
}

// Publisher はローカルファイルを公開URLに変換します。*storage.S3Publisher が満たします。
type Publisher interface {
	PublishFile(ctx context.Context, path string) (*storage.Object, error)
}

var (
	_ Generator = (*generator.CharacterGenerator)(nil)
	_ Publisher = (*storage.S3Publisher)(nil)
)

// App はコマンド実行に必要な依存関係の集まりです。
// Generator と Publisher は設定が不足している場合 nil になります。
type App struct {
	Config    *config.Config
	Generator Generator
	Publisher Publisher
	// Lister は gs:// プレフィックスの展開に使います。GCS_ENABLED=false の場合は nil。
	Lister remoteio.InputReader

	closers []func() error
}

// Close は App が保持するクライアントを閉じます。
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Builder は設定から App を組み立てます。テストでは差し替えます。
type Builder func(ctx context.Context, cfg *config.Config) (*App, error)

// BuildApp は設定に従って fetcher、キャッシュ、バックオフ、Gemini クライアント、ストレージを生成して注入します。
func BuildApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	fetchOpts := []fetcher.Option{
		fetcher.WithTimeout(cfg.FetchTimeout),
		fetcher.WithAllowPrivateNetworks(cfg.AllowPrivateNetworks),
	}
	if cfg.GCSEnabled {
		factory, err := gcsfactory.New(ctx)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, factory.Close)
		reader, err := factory.InputReader()
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Lister = reader
		fetchOpts = append(fetchOpts, fetcher.WithReader(reader))
	}
	imageFetcher := fetcher.New(fetchOpts...)

	if cfg.StorageEnabled() {
		publisher, err := storage.NewS3Publisher(ctx, cfg.Storage)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Publisher = publisher
	}

	if cfg.APIKey == "" {
		slog.DebugContext(ctx, "APIキーが未設定のため Gemini クライアントを生成しません")
		return app, nil
	}

	backoff, err := retry.New(retry.Config{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	aiClient, err := generator.NewGenAIClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.ModelTimeout)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	opts := []generator.Option{
		generator.WithModel(cfg.Model),
		generator.WithPacing(cfg.BatchPacing),
	}
	if cfg.ImageCacheTTL > 0 {
		opts = append(opts, generator.WithCache(gocache.New(cfg.ImageCacheTTL, 2*cfg.ImageCacheTTL), cfg.ImageCacheTTL))
	}
	if cfg.CompressImages {
		opts = append(opts, generator.WithCompression(cfg.JPEGQuality, cfg.MaxImageDimension))
	}

	gen, err := generator.NewCharacterGenerator(imageFetcher, aiClient, backoff, opts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	app.Generator = gen
	return app, nil
}
