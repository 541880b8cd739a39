package openai

import (
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/jinford/repo-qa/internal/platform/executor"
)

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set: please set OPENAI_API_KEY environment variable")

// newSDKClient は OpenAI 互換エンドポイント向けの SDK クライアントを作成する。
// 再試行は Executor が担うため SDK 側の再試行は無効化する。
func newSDKClient(apiKey, baseURL string, httpClient *http.Client) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return openai.NewClient(opts...)
}

// toStatusError は API エラーを executor.StatusError に変換する。
// それ以外のエラーはそのまま返す。
func toStatusError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	message := apiErr.Message
	if message == "" {
		message = apiErr.Error()
	}
	return &executor.StatusError{
		StatusCode: apiErr.StatusCode,
		Message:    message,
		Err:        err,
	}
}
