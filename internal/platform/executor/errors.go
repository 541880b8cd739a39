package executor

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrTransientFailureExceeded は一時的エラーで最大試行回数を使い切った場合のエラー
var ErrTransientFailureExceeded = errors.New("transient failure exceeded")

// StatusError は外部サービスが返した HTTP ステータス付きのエラー
type StatusError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// TransientFailureExceededError は再試行を使い切った終端エラー
type TransientFailureExceededError struct {
	Attempts int
	Err      error
}

func (e *TransientFailureExceededError) Error() string {
	return fmt.Sprintf("transient failure persisted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientFailureExceededError) Unwrap() error {
	return e.Err
}

// Is は errors.Is(err, ErrTransientFailureExceeded) を成立させる
func (e *TransientFailureExceededError) Is(target error) bool {
	return target == ErrTransientFailureExceeded
}

// IsTransient はエラーが再試行対象（429/503）かどうかを判定する
func IsTransient(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode == http.StatusTooManyRequests ||
		statusErr.StatusCode == http.StatusServiceUnavailable
}

// "Please try again in 1.5s" / "try again in 2m59.56s" / "retry after 250ms"
var suggestedDurationPattern = regexp.MustCompile(`(?i)(?:try again|retry)(?: in| after) ((?:\d+(?:\.\d+)?(?:ms|h|m|s))+)\b`)

// "retry in 3 seconds" / "try again in 2 minutes" / "retry after 5"
var suggestedWordsPattern = regexp.MustCompile(`(?i)(?:try again|retry)(?: in| after) (\d+(?:\.\d+)?)\s*(milliseconds?|minutes?|mins?|secs?|seconds?)?\b`)

// SuggestedWait はエラーメッセージからサービスが指示する待機時間を抽出する
func SuggestedWait(message string) (time.Duration, bool) {
	if m := suggestedDurationPattern.FindStringSubmatch(message); m != nil {
		d, err := time.ParseDuration(strings.ToLower(m[1]))
		if err == nil && d >= 0 {
			return d, true
		}
	}

	m := suggestedWordsPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || value < 0 {
		return 0, false
	}

	unit := time.Second
	switch u := strings.ToLower(m[2]); {
	case strings.HasPrefix(u, "mil"):
		unit = time.Millisecond
	case strings.HasPrefix(u, "min"):
		unit = time.Minute
	}
	return time.Duration(value * float64(unit)), true
}
