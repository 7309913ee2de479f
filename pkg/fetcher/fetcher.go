// Package fetcher は元画像の取得を担当します。
// http(s) の URL は httpkit.Client で、gs:// の URI は remoteio.InputReader 経由で読み込みます。
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/shouni/gemini-character-kit/pkg/domain"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

const (
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes はアップロード用バケットの上限 (10MB) に合わせています。
	DefaultMaxBytes int64 = 10 * 1024 * 1024
	// FallbackMIMEType は判定できなかった場合の MIME タイプです。
	FallbackMIMEType = "image/jpeg"

	userAgent = "gemini-character-kit/1.0"
)

// Fetcher は URL から画像を取得します。
// SSRF 対策は httpkit に任せ、リクエスト前の URL 検証に加えて接続時にも解決先 IP を検証します。
type Fetcher struct {
	client       *httpkit.Client
	reader       remoteio.InputReader
	allowPrivate bool
	maxBytes     int64
	timeout      time.Duration
	doer         httpkit.Doer
}

// Option は Fetcher の設定を変更します。
type Option func(*Fetcher)

// WithHTTPClient は下位の HTTP クライアントを差し替えます。
// 差し替えた場合、接続時の IP 検証は行われません。
func WithHTTPClient(d httpkit.Doer) Option {
	return func(f *Fetcher) {
		f.doer = d
	}
}

// WithTimeout は HTTP クライアントのタイムアウトを設定します。
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithReader は gs:// URI の読み込みに使う InputReader を設定します。
func WithReader(r remoteio.InputReader) Option {
	return func(f *Fetcher) {
		f.reader = r
	}
}

// WithAllowPrivateNetworks は SSRF 対策のIP検証を無効にします。ローカル開発とテスト用です。
func WithAllowPrivateNetworks(allow bool) Option {
	return func(f *Fetcher) {
		f.allowPrivate = allow
	}
}

// WithMaxBytes は取得する画像サイズの上限を設定します。
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// New は Fetcher を生成します。
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}

	clientOpts := []httpkit.ClientOption{httpkit.WithSkipNetworkValidation(f.allowPrivate)}
	if f.doer != nil {
		clientOpts = append(clientOpts, httpkit.WithHTTPClient(f.doer))
	}
	f.client = httpkit.New(f.timeout, clientOpts...)
	return f
}

// Fetch は画像を取得し、データと MIME タイプを返します。
// 非 2xx のレスポンスは *FetchError になります。再試行はしません。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*domain.SourceImage, error) {
	if remoteio.IsGCSURI(rawURL) {
		return f.fetchRemote(ctx, rawURL)
	}

	if !f.allowPrivate {
		if safe, err := f.client.IsSafeURL(rawURL); !safe {
			if err == nil {
				err = fmt.Errorf("blocked by network policy")
			}
			slog.WarnContext(ctx, "SSRFの可能性がある、または不正なURLをブロックしました", "url", rawURL, "error", err)
			return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsafe URL: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/gif, */*")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	if resp.ContentLength > f.maxBytes {
		_ = resp.Body.Close()
		return nil, &FetchError{URL: rawURL, Err: f.sizeError()}
	}

	data, err := httpkit.HandleLimitedResponse(resp, f.maxBytes+1)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: rawURL, Err: f.sizeError()}
	}

	slog.DebugContext(ctx, "画像を取得しました", "url", rawURL, "size", len(data))
	return &domain.SourceImage{
		URL:      rawURL,
		Data:     data,
		MIMEType: resolveMIMEType(resp.Header.Get("Content-Type"), data),
	}, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, uri string) (*domain.SourceImage, error) {
	if f.reader == nil {
		return nil, &FetchError{URL: uri, Err: fmt.Errorf("gs:// URIs are not enabled")}
	}
	rc, err := f.reader.Open(ctx, uri)
	if err != nil {
		return nil, &FetchError{URL: uri, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: uri, Err: fmt.Errorf("failed to read image body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: uri, Err: f.sizeError()}
	}
	return &domain.SourceImage{
		URL:      uri,
		Data:     data,
		MIMEType: resolveMIMEType("", data),
	}, nil
}

func (f *Fetcher) sizeError() error {
	return fmt.Errorf("image exceeds size limit of %d bytes", f.maxBytes)
}

// resolveMIMEType は Content-Type ヘッダ、バイト列の判定、フォールバックの順で MIME タイプを決めます。
func resolveMIMEType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	if detected := http.DetectContentType(data); strings.HasPrefix(detected, "image/") {
		return detected
	}
	return FallbackMIMEType
}
