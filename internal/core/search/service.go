package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	// DefaultLimit は返却する最大件数
	DefaultLimit = 5
	// DefaultMinResults は次の段階へ進まずに済む最小件数
	DefaultMinResults = 3
)

var (
	// ErrNoRelevantContext はどの段階でも結果が得られなかった場合のエラー
	ErrNoRelevantContext = errors.New("no relevant context found")
	// ErrInvalidInput は入力が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid search input")
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine は段階的に類似度の下限を緩めながら検索するエンジン
type Engine struct {
	repo       Repository
	embedder   Embedder
	tiers      []Tier
	limit      int
	minResults int
	logger     *slog.Logger
}

// EngineOption は Engine のオプション設定
type EngineOption func(*Engine)

// WithTiers は段階を設定する
func WithTiers(tiers []Tier) EngineOption {
	return func(e *Engine) {
		if len(tiers) > 0 {
			e.tiers = tiers
		}
	}
}

// WithLimit は最大件数を設定する
func WithLimit(limit int) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// WithMinResults は最小件数を設定する
func WithMinResults(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.minResults = n
		}
	}
}

// WithEngineLogger はロガーを設定する
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine は新しい Engine を作成する
func NewEngine(repo Repository, embedder Embedder, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:       repo,
		embedder:   embedder,
		tiers:      DefaultTiers(),
		limit:      DefaultLimit,
		minResults: DefaultMinResults,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.minResults > e.limit {
		e.minResults = e.limit
	}
	return e
}

// Retrieve は質問に関連するファイル要約を取得する。
// 質問のEmbeddingは一度だけ生成し、件数が minResults に達するまで段階を進める。
// 結果はファイル名で重複排除（先に得たものを優先）し、limit 件で打ち切る。
func (e *Engine) Retrieve(ctx context.Context, projectID uuid.UUID, question string) ([]*Match, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	queryVector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make([]*Match, 0, e.limit)
	seen := make(map[string]struct{}, e.limit)

	for i, tier := range e.tiers {
		if len(results) >= e.minResults {
			break
		}

		threshold := mo.Some(tier.MinSimilarity)
		if tier.Final {
			threshold = mo.None[float64]()
		}

		matches, err := e.repo.SearchSimilar(ctx, projectID, queryVector, threshold, e.limit)
		if err != nil {
			return nil, fmt.Errorf("search failed at tier %d: %w", i+1, err)
		}

		for _, m := range matches {
			if len(results) >= e.limit {
				break
			}
			if _, dup := seen[m.FileName]; dup {
				continue
			}
			seen[m.FileName] = struct{}{}
			results = append(results, m)
		}

		e.logger.Debug("検索段階を評価",
			"tier", i+1,
			"minSimilarity", threshold.OrElse(-1),
			"hits", len(matches),
			"total", len(results),
		)
	}

	if len(results) == 0 {
		return nil, ErrNoRelevantContext
	}

	return results, nil
}
