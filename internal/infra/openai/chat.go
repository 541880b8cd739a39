package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

const (
	// DefaultModel はデフォルトで使用するチャットモデル
	DefaultModel = "gpt-4o-mini"
)

// CompletionRequest は単発のチャット補完リクエスト
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// ChatClient は OpenAI 互換 Chat Completions API のクライアント。
// すべての呼び出しは所有する Executor を経由する。
type ChatClient struct {
	client   openai.Client
	model    string
	executor *executor.Executor
	logger   *slog.Logger
}

type chatOptions struct {
	model      string
	baseURL    string
	executor   *executor.Executor
	httpClient *http.Client
	logger     *slog.Logger
}

// ChatOption は ChatClient のオプション設定
type ChatOption func(*chatOptions)

// WithChatModel はモデル名を設定する
func WithChatModel(model string) ChatOption {
	return func(o *chatOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithChatBaseURL は OpenAI 互換エンドポイントのURLを設定する（例: https://api.groq.com/openai/v1）
func WithChatBaseURL(baseURL string) ChatOption {
	return func(o *chatOptions) {
		o.baseURL = baseURL
	}
}

// WithChatExecutor は呼び出しに使う Executor を設定する
func WithChatExecutor(e *executor.Executor) ChatOption {
	return func(o *chatOptions) {
		o.executor = e
	}
}

// WithChatHTTPClient は HTTP クライアントを差し替える
func WithChatHTTPClient(c *http.Client) ChatOption {
	return func(o *chatOptions) {
		o.httpClient = c
	}
}

// WithChatLogger はロガーを設定する
func WithChatLogger(logger *slog.Logger) ChatOption {
	return func(o *chatOptions) {
		o.logger = logger
	}
}

// NewChatClient は新しい ChatClient を作成する
func NewChatClient(apiKey string, opts ...ChatOption) (*ChatClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := chatOptions{
		model:  DefaultModel,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.executor == nil {
		options.executor = executor.New(executor.WithLogger(options.logger))
	}

	return &ChatClient{
		client:   newSDKClient(apiKey, options.baseURL, options.httpClient),
		model:    options.model,
		executor: options.executor,
		logger:   options.logger,
	}, nil
}

// ModelName はモデル名を返す
func (c *ChatClient) ModelName() string {
	return c.model
}

// Complete は単発のチャット補完を実行し、最初の候補の本文を返す
func (c *ChatClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	params := c.newParams(req.System, req.Prompt)
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}

	return executor.Execute(ctx, c.executor, func(ctx context.Context) (string, error) {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("chat completion failed: %w", toStatusError(err))
		}
		if len(completion.Choices) == 0 {
			return "", nil
		}

		c.logger.Debug("チャット補完を受信しました",
			"model", completion.Model,
			"tokens", completion.Usage.TotalTokens,
		)
		return completion.Choices[0].Message.Content, nil
	})
}

// StreamAnswer はプロンプトへの回答をストリーミング生成し、チャンクごとに onToken を呼ぶ。
// 最初のチャンクを受け取る前の一時的エラーのみ再試行する。
func (c *ChatClient) StreamAnswer(ctx context.Context, prompt ask.Prompt, onToken func(string) error) error {
	params := c.newParams(prompt.System, prompt.User)

	emitted := false
	return c.executor.Do(ctx, func(ctx context.Context) error {
		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			content := chunk.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			emitted = true
			if err := onToken(content); err != nil {
				return err
			}
		}

		if err := stream.Err(); err != nil {
			if emitted {
				// 出力済みのチャンクを重複させないため再試行しない
				return fmt.Errorf("answer stream interrupted: %w", err)
			}
			return fmt.Errorf("answer stream failed: %w", toStatusError(err))
		}
		return nil
	})
}

func (c *ChatClient) newParams(system, user string) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
}

// インターフェース実装の確認
var _ ask.Generator = (*ChatClient)(nil)
