package generator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"github.com/shouni/gemini-character-kit/pkg/fetcher"
	"github.com/shouni/gemini-character-kit/pkg/retry"
	"google.golang.org/genai"
)

// GenerateSingle は1枚の元画像から人物描写を生成し、イラスト生成URLを組み立てます。
// 取得エラーとモデルのエラーはそのまま呼び出し元へ返します。
func (g *CharacterGenerator) GenerateSingle(ctx context.Context, imageURL string) (*domain.GenerationResult, error) {
	if imageURL == "" {
		return nil, domain.ErrEmptyImageURL
	}

	img, err := g.loadImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Geminiに画像を送信して描写を生成します", "model", g.model, "url", imageURL)
	parts := []*genai.Part{
		{Text: describePrompt},
		g.toPart(ctx, img),
	}
	description, err := g.generateText(ctx, parts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "描写を受信しました", "description", excerpt(description, 100))

	generated := g.standard.URL(BuildIllustrationPrompt(description))
	slog.DebugContext(ctx, "画像生成URLを組み立てました", "generated_url", generated)

	return &domain.GenerationResult{
		Success:           true,
		GeneratedImageURL: generated,
		Description:       description,
		SourceImageURL:    imageURL,
	}, nil
}

// GenerateBatch は画像を入力順に1枚ずつ処理します。
// 2枚目以降の前には pacing だけ待機し、個々の失敗は結果エントリとして記録して処理を続けます。
// 戻り値の Characters は常に入力と同じ件数です。
func (g *CharacterGenerator) GenerateBatch(ctx context.Context, imageURLs []string) (*domain.BatchResult, error) {
	if len(imageURLs) == 0 {
		return nil, domain.ErrNoImages
	}

	total := len(imageURLs)
	slog.InfoContext(ctx, "キャラクターの一括生成を開始します", "total", total, "pacing", g.pacing)

	characters := make([]domain.GenerationResult, 0, total)
	for i, u := range imageURLs {
		if i > 0 && g.pacing > 0 {
			slog.InfoContext(ctx, "レート制限回避のため待機します", "delay", g.pacing)
			if err := g.sleep(ctx, g.pacing); err != nil {
				slog.WarnContext(ctx, "待機が中断されました", "index", i+1, "url", u, "error", err)
				characters = append(characters, domain.NewFailure(u, err.Error()))
				continue
			}
		}

		slog.InfoContext(ctx, "画像を処理しています", "index", i+1, "total", total, "url", u)
		res, err := g.GenerateSingle(ctx, u)
		if err != nil {
			slog.WarnContext(ctx, "キャラクター生成に失敗しました", "index", i+1, "url", u, "error", err)
			characters = append(characters, domain.NewFailure(u, failureMessage(err)))
			continue
		}
		characters = append(characters, *res)
	}

	result := &domain.BatchResult{Success: true, Characters: characters}
	slog.InfoContext(ctx, "キャラクターの一括生成が完了しました", "succeeded", result.Succeeded(), "total", total)
	return result, nil
}

// failureMessage はバッチ結果に記録するエラーメッセージを返します。
// モデル呼び出しのクォータ超過のみ正規化し、画像取得の失敗は URL を含む元のメッセージのまま返します。
func failureMessage(err error) string {
	var fetchErr *fetcher.FetchError
	if !errors.As(err, &fetchErr) && retry.IsQuotaExceeded(err) {
		return QuotaExceededMessage
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}
