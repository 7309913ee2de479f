package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-gemini-client/pkg/gemini"
	"google.golang.org/genai"
)

const defaultRequestTimeout = 60 * time.Second

// GenAIClient は google.golang.org/genai を使って ContentGenerator を実装します。
type GenAIClient struct {
	client  *genai.Client
	timeout time.Duration
}

// NewGenAIClient は Gemini API 用のクライアントを生成します。baseURL が空の場合は既定のエンドポイントを使います。
func NewGenAIClient(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &GenAIClient{client: client, timeout: timeout}, nil
}

// GenerateWithParts はパーツを1つのユーザーメッセージとして送信します。
// エラーは genai.APIError を保ったまま返すので、呼び出し側で分類できます。
func (c *GenAIClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, _ gemini.GenerateOptions) (*gemini.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contents := []*genai.Content{{Role: string(genai.RoleUser), Parts: parts}}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return nil, err
	}
	return &gemini.Response{RawResponse: resp}, nil
}
