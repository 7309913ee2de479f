package domain

// SourceImage は取得済みの元画像です。リクエストごとに生成され、保存はされません。
type SourceImage struct {
	URL      string
	Data     []byte
	MIMEType string
}
