// Package config は .env と環境変数からアプリケーション設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shouni/gemini-character-kit/pkg/fetcher"
	"github.com/shouni/gemini-character-kit/pkg/generator"
	"github.com/shouni/gemini-character-kit/pkg/retry"
	"github.com/shouni/gemini-character-kit/pkg/storage"
)

// Config はアプリケーション設定です。
type Config struct {
	// Gemini
	APIKey       string
	Model        string
	BaseURL      string
	ModelTimeout time.Duration

	// 再試行とバッチ
	MaxRetries        int
	InitialRetryDelay time.Duration
	BatchPacing       time.Duration

	// 画像取得と前処理
	FetchTimeout         time.Duration
	AllowPrivateNetworks bool
	ImageCacheTTL        time.Duration
	CompressImages       bool
	JPEGQuality          int
	MaxImageDimension    int

	// ストレージ
	Storage    storage.S3Config
	GCSEnabled bool

	LogLevel  string
	LogFormat string
}

// Load は .env (存在する場合) を読み込んでから環境変数で Config を組み立てます。
// 既に設定されている環境変数は .env で上書きされません。
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	p := &parser{}
	cfg := &Config{
		APIKey:       firstNonEmpty(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY")),
		Model:        getEnv("GEMINI_MODEL", generator.DefaultModel),
		BaseURL:      getEnv("GEMINI_BASE_URL", ""),
		ModelTimeout: p.getDuration("GEMINI_TIMEOUT", 60*time.Second),

		MaxRetries:        p.getInt("MAX_RETRIES", retry.DefaultMaxRetries),
		InitialRetryDelay: p.getDuration("INITIAL_RETRY_DELAY", retry.DefaultInitialDelay),
		BatchPacing:       p.getDuration("BATCH_PACING", generator.DefaultPacing),

		FetchTimeout:         p.getDuration("FETCH_TIMEOUT", fetcher.DefaultTimeout),
		AllowPrivateNetworks: p.getBool("ALLOW_PRIVATE_NETWORKS", false),
		ImageCacheTTL:        p.getDuration("IMAGE_CACHE_TTL", 10*time.Minute),
		CompressImages:       p.getBool("COMPRESS_IMAGES", true),
		JPEGQuality:          p.getInt("JPEG_QUALITY", 75),
		MaxImageDimension:    p.getInt("MAX_IMAGE_DIMENSION", 1536),

		Storage: storage.S3Config{
			Endpoint:      getEnv("STORAGE_ENDPOINT", ""),
			Region:        getEnv("STORAGE_REGION", "us-east-1"),
			AccessKey:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getEnv("STORAGE_SECRET_KEY", ""),
			Bucket:        getEnv("STORAGE_BUCKET", ""),
			Prefix:        getEnv("STORAGE_PREFIX", storage.DefaultPrefix),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		},
		GCSEnabled: p.getBool("GCS_ENABLED", false),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は Gemini を呼び出すコマンドに必要な設定を検証します。
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("GOOGLE_API_KEY is required"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 1 (got %d)", c.MaxRetries))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("JPEG_QUALITY must be between 1 and 100 (got %d)", c.JPEGQuality))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT: %s", c.LogFormat))
	}
	return errors.Join(errs...)
}

// StorageEnabled はアップロード先バケットが設定されているかどうかを返します。
func (c *Config) StorageEnabled() bool {
	return c.Storage.Bucket != ""
}

// parser は環境変数の型変換エラーをまとめて返すために蓄積します。
type parser struct {
	errs []error
}

func (p *parser) getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

// getDuration は "2s" 形式の値と、単位なしのミリ秒の両方を受け付けます。
func (p *parser) getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, v))
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
