package fetcher

import "fmt"

// FetchError は元画像を取得できなかったことを表します。再試行はしません。
type FetchError struct {
	URL string
	// StatusCode は HTTP ステータスコードです。通信エラー等の場合は 0。
	StatusCode int
	// Status は "404 Not Found" 形式のステータス文字列です。
	Status string
	Err    error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image fetch failed: %s (%s)", e.Status, e.URL)
	}
	return fmt.Sprintf("image fetch failed (%s): %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
