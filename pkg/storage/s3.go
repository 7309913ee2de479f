// Package storage はローカル画像の公開用アップロード (S3 互換ストレージ) と
// gs:// URI の読み込み (Google Cloud Storage) を担当します。
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// DefaultMaxBytes はアップロード可能なファイルサイズの上限 (10MB) です。
	DefaultMaxBytes int64 = 10 * 1024 * 1024
	DefaultPrefix         = "book-images"

	cacheControl = "max-age=3600"
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrTooLarge        = errors.New("file exceeds size limit")
)

// allowedTypes は公開を許可する MIME タイプと、ファイル名に拡張子がない場合の拡張子です。
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// ObjectAPI は S3Publisher が利用する S3 API の部分集合です。*s3.Client が満たします。
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config は S3 互換ストレージの接続設定です。
type S3Config struct {
	// Endpoint は S3 互換サービスのエンドポイントです (例: https://<project>.supabase.co/storage/v1/s3)。
	// 空の場合は AWS S3 を使います。
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix はオブジェクトキーの先頭に付くフォルダ名です。
	Prefix string
	// PublicBaseURL が設定されている場合、公開URLは PublicBaseURL/<key> になります。
	PublicBaseURL string
}

// Object はアップロード済みオブジェクトの情報です。
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int    `json:"size"`
	ContentType string `json:"contentType"`
}

// S3Publisher は画像を公開バケットへアップロードし、公開URLを返します。
type S3Publisher struct {
	api           ObjectAPI
	bucket        string
	prefix        string
	endpoint      string
	region        string
	publicBaseURL string
	maxBytes      int64

	now    func() time.Time
	suffix func() int64
}

// NewS3Publisher は設定から S3 クライアントを生成して S3Publisher を初期化します。
func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3PublisherWithAPI(client, cfg)
}

// NewS3PublisherWithAPI は既存の ObjectAPI を使って S3Publisher を初期化します。
func NewS3PublisherWithAPI(api ObjectAPI, cfg S3Config) (*S3Publisher, error) {
	if api == nil {
		return nil, fmt.Errorf("api is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		prefix = DefaultPrefix
	}
	return &S3Publisher{
		api:           api,
		bucket:        cfg.Bucket,
		prefix:        prefix,
		endpoint:      normalizeEndpoint(cfg.Endpoint),
		region:        cfg.Region,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		maxBytes:      DefaultMaxBytes,
		now:           time.Now,
		suffix:        func() int64 { return rand.Int64N(1_000_000_000) },
	}, nil
}

// Publish はデータをアップロードして公開URLを返します。
// 許可されていない MIME タイプと上限を超えるサイズはアップロード前にエラーになります。
func (p *S3Publisher) Publish(ctx context.Context, name string, data []byte, contentType string) (*Object, error) {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = ct
	}
	if _, ok := allowedTypes[contentType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, len(data), p.maxBytes)
	}

	key := p.ObjectKey(name, contentType)
	_, err := p.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String(cacheControl),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	obj := &Object{Key: key, URL: p.PublicURL(key), Size: len(data), ContentType: contentType}
	slog.InfoContext(ctx, "画像をアップロードしました", "bucket", p.bucket, "key", key, "size", obj.Size)
	return obj, nil
}

// PublishFile はローカルファイルを読み込んでアップロードします。
// MIME タイプは拡張子から、判定できなければ内容から決めます。
func (p *S3Publisher) PublishFile(ctx context.Context, filePath string) (*Object, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if info.Size() > p.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, filePath, info.Size(), p.maxBytes)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filePath)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return p.Publish(ctx, filepath.Base(filePath), data, contentType)
}

// Delete はオブジェクトを削除します。
func (p *S3Publisher) Delete(ctx context.Context, key string) error {
	_, err := p.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ObjectKey は <prefix>/<unixMillis>-<random>.<ext> 形式のキーを返します。
func (p *S3Publisher) ObjectKey(name, contentType string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		ext = allowedTypes[contentType]
	}
	fileName := fmt.Sprintf("%d-%d.%s", p.now().UnixMilli(), p.suffix(), ext)
	return path.Join(p.prefix, fileName)
}

// PublicURL はキーに対応する公開URLを返します。
func (p *S3Publisher) PublicURL(key string) string {
	switch {
	case p.publicBaseURL != "":
		return p.publicBaseURL + "/" + key
	case p.endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(p.endpoint, "/"), p.bucket, key)
	case p.region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", p.bucket, key)
	}
}

func normalizeEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}
