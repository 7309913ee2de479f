package generator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/shouni/gemini-character-kit/pkg/domain"
	"github.com/shouni/go-gemini-client/pkg/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		resp    *gemini.Response
		want    string
		wantErr string
	}{
		{"nil", nil, "", "invalid response"},
		{"候補なし", &gemini.Response{RawResponse: &genai.GenerateContentResponse{}}, "", "invalid response"},
		{"前後の空白を除去", textResponse("  hello \n"), "hello", ""},
		{
			"複数パーツを連結し思考パーツは除外",
			&gemini.Response{RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{
						{Text: "thinking...", Thought: true},
						{Text: "a fox "},
						{Text: "in a hat"},
					}},
				}},
			}},
			"a fox in a hat", "",
		},
		{
			"空テキストと終了理由",
			&gemini.Response{RawResponse: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReason("SAFETY")}},
			}},
			"", "finish reason: SAFETY",
		},
		{"空テキスト", textResponse("   "), "", "no text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractText(tt.resp)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCharacterGenerator_toPart(t *testing.T) {
	ctx := context.Background()

	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 6), uint8(y * 12), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	pngData := buf.Bytes()

	t.Run("圧縮なしなら取得したデータと MIME をそのまま使う", func(t *testing.T) {
		g, _ := newTestGenerator(t, &mockFetcher{}, &mockAIClient{})
		part := g.toPart(ctx, &domain.SourceImage{Data: pngData, MIMEType: "image/png"})
		assert.Equal(t, "image/png", part.InlineData.MIMEType)
		assert.Equal(t, pngData, part.InlineData.Data)
	})

	t.Run("圧縮ありなら縮小した JPEG に置き換える", func(t *testing.T) {
		g, _ := newTestGenerator(t, &mockFetcher{}, &mockAIClient{}, WithCompression(80, 10))
		part := g.toPart(ctx, &domain.SourceImage{Data: pngData, MIMEType: "image/png"})
		assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)

		decoded, format, err := image.Decode(bytes.NewReader(part.InlineData.Data))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 10, decoded.Bounds().Dx())
		assert.Equal(t, 5, decoded.Bounds().Dy())
	})

	t.Run("デコードできなければ元データを送る", func(t *testing.T) {
		g, _ := newTestGenerator(t, &mockFetcher{}, &mockAIClient{}, WithCompression(80, 10))
		part := g.toPart(ctx, &domain.SourceImage{Data: []byte("RIFF....WEBP"), MIMEType: "image/webp"})
		assert.Equal(t, "image/webp", part.InlineData.MIMEType)
		assert.Equal(t, []byte("RIFF....WEBP"), part.InlineData.Data)
	})
}

func TestCharacterGenerator_Ping(t *testing.T) {
	ai := &mockAIClient{
		generateWithPartsFunc: func(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
			return textResponse("OK"), nil
		},
	}
	g, _ := newTestGenerator(t, &mockFetcher{}, ai)

	got, err := g.Ping(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "OK", got)
	require.Len(t, ai.lastParts, 1)
	assert.Equal(t, pingPrompt, ai.lastParts[0].Text)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "abc", excerpt("abc", 5))
	assert.Equal(t, "あい...", excerpt("あいうえ", 2))
}
