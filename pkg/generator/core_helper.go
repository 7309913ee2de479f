package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"github.com/shouni/gemini-character-kit/pkg/imgutil"
	"github.com/shouni/gemini-character-kit/pkg/retry"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

// loadImage はキャッシュを確認し、なければ fetcher から元画像を取得します。
// 取得エラーは再試行しません。
func (g *CharacterGenerator) loadImage(ctx context.Context, rawURL string) (*domain.SourceImage, error) {
	if g.cache != nil {
		if val, ok := g.cache.Get(cacheKeySourceImage + rawURL); ok {
			if img, ok := val.(*domain.SourceImage); ok {
				slog.DebugContext(ctx, "キャッシュから元画像を取得しました", "url", rawURL)
				return img, nil
			}
		}
	}

	img, err := g.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "元画像を取得しました", "url", rawURL, "size", len(img.Data), "mime_type", img.MIMEType)

	if g.cache != nil {
		g.cache.Set(cacheKeySourceImage+rawURL, img, g.expiration)
	}
	return img, nil
}

// toPart は元画像をインラインデータのパーツに変換します。
// 圧縮が有効な場合、デコードできた画像だけを JPEG に置き換えます。
func (g *CharacterGenerator) toPart(ctx context.Context, img *domain.SourceImage) *genai.Part {
	data, mimeType := img.Data, img.MIMEType
	if g.compress {
		if compressed, err := imgutil.PrepareForUpload(data, g.quality, g.maxDimension); err == nil {
			data, mimeType = compressed, "image/jpeg"
		} else {
			slog.DebugContext(ctx, "画像を圧縮できなかったため元データを送信します", "url", img.URL, "error", err)
		}
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}
}

// generateText はバックオフ付きでモデルを呼び出し、整形済みのテキストを返します。
// モデルのエラーはラップせずにそのまま返します。
func (g *CharacterGenerator) generateText(ctx context.Context, parts []*genai.Part) (string, error) {
	return retry.Do(ctx, g.backoff, func(ctx context.Context) (string, error) {
		resp, err := g.aiClient.GenerateWithParts(ctx, g.model, parts, gemini.GenerateOptions{})
		if err != nil {
			return "", err
		}
		return extractText(resp)
	})
}

// extractText は最初の候補のテキストパーツを連結して前後の空白を除去します。
func extractText(resp *gemini.Response) (string, error) {
	if resp == nil || resp.RawResponse == nil || len(resp.RawResponse.Candidates) == 0 {
		return "", fmt.Errorf("invalid response: no candidates")
	}

	candidate := resp.RawResponse.Candidates[0]
	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		if candidate.FinishReason != "" && candidate.FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("model returned no text (finish reason: %s)", candidate.FinishReason)
		}
		return "", fmt.Errorf("model returned no text")
	}
	return text, nil
}

// excerpt はログ出力用に先頭 n 文字だけを返します。
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
