package domain

import "errors"

var (
	// ErrEmptyImageURL は画像URLが指定されていない場合のエラーです。
	ErrEmptyImageURL = errors.New("image URL is required")
	// ErrNoImages はバッチ生成に画像URLが1件も渡されなかった場合のエラーです。
	ErrNoImages = errors.New("image URLs array is required")
)

// GenerationResult は1枚の元画像に対する生成結果です。
// Success が false の場合は Error と SourceImageURL のみが意味を持ちます。
type GenerationResult struct {
	Success           bool   `json:"success"`
	GeneratedImageURL string `json:"generatedImageUrl,omitempty"`
	Description       string `json:"description,omitempty"`
	Error             string `json:"error,omitempty"`
	SourceImageURL    string `json:"imageUrl,omitempty"`
}

// BatchResult は複数画像の生成結果です。Characters は入力と同じ順序・同じ件数を保持します。
// 個々の失敗があってもバッチ自体は Success=true になります。
type BatchResult struct {
	Success    bool               `json:"success"`
	Characters []GenerationResult `json:"characters"`
}

// Succeeded は成功したエントリ数を返します。
func (b *BatchResult) Succeeded() int {
	n := 0
	for _, c := range b.Characters {
		if c.Success {
			n++
		}
	}
	return n
}

// TemplateResult はテンプレート画像への差し替え結果です。
type TemplateResult struct {
	Success           bool   `json:"success"`
	GeneratedImageURL string `json:"generatedImageUrl"`
	Prompt            string `json:"prompt"`
}

// NewFailure は失敗エントリを生成します。
func NewFailure(sourceURL, message string) GenerationResult {
	return GenerationResult{
		Success:        false,
		Error:          message,
		SourceImageURL: sourceURL,
	}
}
