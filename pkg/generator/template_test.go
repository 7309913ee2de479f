package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"github.com/shouni/gemini-character-kit/pkg/fetcher"
	"github.com/shouni/gemini-character-kit/pkg/illustration"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestCharacterGenerator_ReplaceSubjectInTemplate(t *testing.T) {
	ctx := context.Background()
	const subjectURL = "https://x/kid.jpg"
	const templateURL = "https://x/cover.png"

	t.Run("成功: テンプレート → 被写体の順で送信し、高解像度URLを返すのだ", func(t *testing.T) {
		const merged = "A storybook forest cover with a curly-haired toddler in the centre"
		ai := &mockAIClient{
			generateWithPartsFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
				return textResponse("\n" + merged + "  "), nil
			},
		}
		f := &mockFetcher{}
		g, _ := newTestGenerator(t, f, ai)

		res, err := g.ReplaceSubjectInTemplate(ctx, subjectURL, templateURL)

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, merged, res.Prompt)
		assert.Equal(t, illustration.DefaultBaseURL+illustration.EncodeComponent(merged)+
			"?width=1024&height=1024&nologo=true&enhance=true", res.GeneratedImageURL)

		assert.Equal(t, []string{subjectURL, templateURL}, f.calls)
		require.Len(t, ai.lastParts, 3)
		assert.Equal(t, mergePrompt, ai.lastParts[0].Text)
		assert.Equal(t, []byte("img:"+templateURL), ai.lastParts[1].InlineData.Data)
		assert.Equal(t, []byte("img:"+subjectURL), ai.lastParts[2].InlineData.Data)
		assert.Equal(t, 1, ai.calls)
	})

	t.Run("取得エラーはどちらの画像か分かるように返す", func(t *testing.T) {
		tests := []struct {
			name    string
			failURL string
			prefix  string
		}{
			{"被写体", subjectURL, "subject image: "},
			{"テンプレート", templateURL, "template image: "},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := &mockFetcher{
					fetchFunc: func(ctx context.Context, url string) (*domain.SourceImage, error) {
						if url == tt.failURL {
							return nil, &fetcher.FetchError{URL: url, StatusCode: 403, Status: "403 Forbidden"}
						}
						return &domain.SourceImage{URL: url, Data: []byte(url), MIMEType: "image/png"}, nil
					},
				}
				ai := &mockAIClient{}
				g, _ := newTestGenerator(t, f, ai)

				_, err := g.ReplaceSubjectInTemplate(ctx, subjectURL, templateURL)

				require.Error(t, err)
				assert.True(t, strings.HasPrefix(err.Error(), tt.prefix), err.Error())
				assert.Contains(t, err.Error(), "403")
				var fe *fetcher.FetchError
				assert.ErrorAs(t, err, &fe)
				assert.Equal(t, 0, ai.calls)
			})
		}
	})

	t.Run("モデルのエラーはそのまま返す", func(t *testing.T) {
		want := errors.New("safety block")
		ai := &mockAIClient{
			generateWithPartsFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
				return nil, want
			},
		}
		g, _ := newTestGenerator(t, &mockFetcher{}, ai)

		_, err := g.ReplaceSubjectInTemplate(ctx, subjectURL, templateURL)

		assert.ErrorIs(t, err, want)
	})

	t.Run("URLが空ならエラー", func(t *testing.T) {
		g, _ := newTestGenerator(t, &mockFetcher{}, &mockAIClient{})

		_, err := g.ReplaceSubjectInTemplate(ctx, "", templateURL)
		assert.ErrorIs(t, err, domain.ErrEmptyImageURL)
		assert.Contains(t, err.Error(), "subject")

		_, err = g.ReplaceSubjectInTemplate(ctx, subjectURL, "")
		assert.ErrorIs(t, err, domain.ErrEmptyImageURL)
		assert.Contains(t, err.Error(), "template")
	})
}
