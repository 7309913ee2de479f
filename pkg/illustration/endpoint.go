// Package illustration は外部の画像生成エンドポイントへのリクエストURLを組み立てます。
// エンドポイント自体は呼び出さず、描画は URL の利用側 (<img> 要素など) に委ねます。
package illustration

import (
	"strconv"
	"strings"
)

// DefaultBaseURL は Pollinations のプロンプトエンドポイントです。
const DefaultBaseURL = "https://image.pollinations.ai/prompt/"

// Endpoint は画像生成エンドポイントの設定です。
type Endpoint struct {
	BaseURL string
	Width   int
	Height  int
	NoLogo  bool
	Enhance bool
}

// Standard は単一キャラクター生成用の 512x512 設定を返します。
func Standard() Endpoint {
	return Endpoint{BaseURL: DefaultBaseURL, Width: 512, Height: 512, NoLogo: true}
}

// HighResolution はテンプレート差し替え用の 1024x1024 (enhance 有効) 設定を返します。
func HighResolution() Endpoint {
	return Endpoint{BaseURL: DefaultBaseURL, Width: 1024, Height: 1024, NoLogo: true, Enhance: true}
}

// URL はプロンプトをパスに埋め込んだ生成URLを返します。
// クエリは width, height, nologo, enhance の順で固定します。
func (e Endpoint) URL(prompt string) string {
	base := e.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	var q []string
	if e.Width > 0 {
		q = append(q, "width="+strconv.Itoa(e.Width))
	}
	if e.Height > 0 {
		q = append(q, "height="+strconv.Itoa(e.Height))
	}
	if e.NoLogo {
		q = append(q, "nologo=true")
	}
	if e.Enhance {
		q = append(q, "enhance=true")
	}

	u := base + EncodeComponent(prompt)
	if len(q) > 0 {
		u += "?" + strings.Join(q, "&")
	}
	return u
}

// EncodeComponent は encodeURIComponent と同じ規則でエンコードします。
// 英数字と - _ . ! ~ * ' ( ) 以外は UTF-8 のバイト単位で %XX になり、空白は %20 です。
func EncodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnescaped(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

func isUnescaped(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}
