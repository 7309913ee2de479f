package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"google.golang.org/genai"
)

// ReplaceSubjectInTemplate はテンプレート画像の主人公を被写体写真の人物に差し替えるプロンプトを生成し、
// 高解像度エンドポイントの画像生成URLを返します。モデルの出力はそのままプロンプトとして使います。
func (g *CharacterGenerator) ReplaceSubjectInTemplate(ctx context.Context, subjectURL, templateURL string) (*domain.TemplateResult, error) {
	if subjectURL == "" {
		return nil, fmt.Errorf("subject %w", domain.ErrEmptyImageURL)
	}
	if templateURL == "" {
		return nil, fmt.Errorf("template %w", domain.ErrEmptyImageURL)
	}

	subject, err := g.loadImage(ctx, subjectURL)
	if err != nil {
		return nil, fmt.Errorf("subject image: %w", err)
	}
	tmpl, err := g.loadImage(ctx, templateURL)
	if err != nil {
		return nil, fmt.Errorf("template image: %w", err)
	}

	slog.InfoContext(ctx, "Geminiでテンプレートと写真を解析します", "model", g.model)
	parts := []*genai.Part{
		{Text: mergePrompt},
		g.toPart(ctx, tmpl),
		g.toPart(ctx, subject),
	}
	prompt, err := g.generateText(ctx, parts)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "差し替え用プロンプトを受信しました", "prompt", excerpt(prompt, 200))

	return &domain.TemplateResult{
		Success:           true,
		GeneratedImageURL: g.highQuality.URL(prompt),
		Prompt:            prompt,
	}, nil
}
