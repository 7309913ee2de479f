package generator

import (
	"context"
	"time"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// CharacterService はビジネスロジック層（CLI やHTTPハンドラ）が利用する統合窓口です。
type CharacterService interface {
	GenerateSingle(ctx context.Context, imageURL string) (*domain.GenerationResult, error)
	GenerateBatch(ctx context.Context, imageURLs []string) (*domain.BatchResult, error)
	ReplaceSubjectInTemplate(ctx context.Context, subjectURL, templateURL string) (*domain.TemplateResult, error)
}

var (
	_ CharacterService = (*CharacterGenerator)(nil)
	_ ContentGenerator = (*GenAIClient)(nil)
)

// ImageFetcher は、URL から元画像のバイト列と MIME タイプを取得するためのインターフェースです。
// 取得できなかった場合は HTTP ステータスを含むエラーを返します。
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.SourceImage, error)
}

// ContentGenerator は、テキストと画像パーツから文章を生成するモデルクライアントです。
type ContentGenerator interface {
	GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error)
}

// ImageCacher は、画像をキャッシュするためのインターフェースです。
type ImageCacher interface {
	// Get は、指定されたキーに紐づくアイテムを取得します。
	Get(key string) (any, bool)
	// Set は、指定されたキーと値、有効期限でアイテムを保存します。
	Set(key string, value any, d time.Duration)
}
