package retry

import (
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"
)

// Kind はエラーの分類です。
type Kind int

const (
	// KindTerminal は再試行しないエラーです。
	KindTerminal Kind = iota
	// KindRateLimited は上流のレート制限によるエラーです。
	KindRateLimited
)

func (k Kind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "terminal"
}

// Classification は Classify の結果です。
type Classification struct {
	Kind Kind
	// RetryAfter はサーバーが提示した待機秒数です。Hinted が false の場合は使いません。
	RetryAfter time.Duration
	// Hinted はサーバーが待機時間を提示したかどうかです。"retry in 0s" も提示ありとして扱います。
	Hinted bool
	// Quota はクォータ超過を示すマーカーが含まれていたかどうかです。
	Quota bool
}

// RateLimited はレート制限エラーかどうかを返します。
func (c Classification) RateLimited() bool {
	return c.Kind == KindRateLimited
}

var (
	rateLimitMarkers = []string{"429", "quota", "rate limit", "too many requests"}
	quotaMarkers     = []string{"quota", "429"}

	// "retry in 17s" / "Please retry after 5 s" など。小数部は切り捨てて整数秒として扱う。
	retryHintPattern = regexp.MustCompile(`(?i)retry.*?(\d+)(?:\.\d+)?\s*s`)
)

// maxHintSeconds は time.Duration に収まる秒数の上限です。
const maxHintSeconds = int64(math.MaxInt64/time.Second) - 1

// Classify はエラーをレート制限か終端エラーかに分類します。
// genai.APIError の場合はステータスコードと RetryInfo を優先し、
// それ以外はメッセージ中のマーカーで判定します。
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindTerminal}
	}

	var c Classification
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			c.Kind = KindRateLimited
			c.Quota = true
		}
		c.RetryAfter, c.Hinted = retryDelayFromDetails(apiErr.Details)
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, rateLimitMarkers) {
		c.Kind = KindRateLimited
	}
	if containsAny(msg, quotaMarkers) {
		c.Quota = true
	}

	if c.Kind == KindRateLimited && !c.Hinted {
		c.RetryAfter, c.Hinted = retryHintFromMessage(err.Error())
	}
	if c.Kind != KindRateLimited {
		return Classification{Kind: KindTerminal}
	}
	return c
}

// IsQuotaExceeded はクォータ超過系のエラーかどうかを返します。
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Quota
}

func retryHintFromMessage(msg string) (time.Duration, bool) {
	m := retryHintPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	if secs > maxHintSeconds {
		secs = maxHintSeconds
	}
	return time.Duration(secs) * time.Second, true
}

// retryDelayFromDetails は google.rpc.RetryInfo の retryDelay ("17s", "1.5s") を読み取ります。
func retryDelayFromDetails(details []map[string]any) (time.Duration, bool) {
	for _, d := range details {
		typ, _ := d["@type"].(string)
		if !strings.HasSuffix(typ, "RetryInfo") {
			continue
		}
		raw, ok := d["retryDelay"].(string)
		if !ok {
			continue
		}
		delay, err := time.ParseDuration(raw)
		if err != nil || delay < 0 {
			continue
		}
		return delay.Truncate(time.Second), true
	}
	return 0, false
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
