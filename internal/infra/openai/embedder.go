package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go/v3"

	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/search"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

// Embedder は OpenAI 互換 Embeddings API を使用してテキストをベクトルに変換する
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	executor  *executor.Executor
}

const (
	// DefaultEmbeddingModel はモデル未指定時のデフォルトモデル
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultEmbeddingDimension はOpenAI推奨のデフォルト次元
	DefaultEmbeddingDimension = 1536
)

type embedderOptions struct {
	model      string
	dimension  int
	baseURL    string
	executor   *executor.Executor
	httpClient *http.Client
	logger     *slog.Logger
}

// EmbedderOption は Embedder のオプション設定
type EmbedderOption func(*embedderOptions)

// WithEmbeddingModel はモデル名を上書きする
func WithEmbeddingModel(model string) EmbedderOption {
	return func(o *embedderOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithEmbeddingDimension はベクトル次元を上書きする
func WithEmbeddingDimension(dimension int) EmbedderOption {
	return func(o *embedderOptions) {
		o.dimension = dimension
	}
}

// WithEmbeddingBaseURL は OpenAI 互換エンドポイントのURLを設定する
func WithEmbeddingBaseURL(baseURL string) EmbedderOption {
	return func(o *embedderOptions) {
		o.baseURL = baseURL
	}
}

// WithEmbeddingExecutor は呼び出しに使う Executor を設定する
func WithEmbeddingExecutor(e *executor.Executor) EmbedderOption {
	return func(o *embedderOptions) {
		o.executor = e
	}
}

// WithEmbeddingHTTPClient は HTTP クライアントを差し替える
func WithEmbeddingHTTPClient(c *http.Client) EmbedderOption {
	return func(o *embedderOptions) {
		o.httpClient = c
	}
}

// WithEmbeddingLogger は既定の Executor が使うロガーを設定する
func WithEmbeddingLogger(logger *slog.Logger) EmbedderOption {
	return func(o *embedderOptions) {
		o.logger = logger
	}
}

// NewEmbedder は新しい Embedder を作成する
func NewEmbedder(apiKey string, opts ...EmbedderOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	options := embedderOptions{
		model:     DefaultEmbeddingModel,
		dimension: DefaultEmbeddingDimension,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.executor == nil {
		options.executor = executor.New(executor.WithLogger(options.logger))
	}

	return &Embedder{
		client:    newSDKClient(apiKey, options.baseURL, options.httpClient),
		model:     options.model,
		dimension: options.dimension,
		executor:  options.executor,
	}, nil
}

// Embed は単一テキストの Embedding を生成する
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	return executor.Execute(ctx, e.executor, func(ctx context.Context) ([]float32, error) {
		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", toStatusError(err))
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("no embeddings generated")
		}

		vector := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vector[i] = float32(v)
		}
		return vector, nil
	})
}

// ModelName はモデル名を返す
func (e *Embedder) ModelName() string {
	return e.model
}

// Dimension はベクトル次元数を返す
func (e *Embedder) Dimension() int {
	return e.dimension
}

// インターフェース実装の確認
var (
	_ ingestion.Embedder = (*Embedder)(nil)
	_ search.Embedder    = (*Embedder)(nil)
)
