package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidInput は入力が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid index input")
	// ErrNoValidEmbeddings は有効なレコードが1件も得られなかった場合のエラー（何も保存しない）
	ErrNoValidEmbeddings = errors.New("no valid embeddings generated")
)

// IndexService はリポジトリのインデックス化のユースケースを提供する
type IndexService struct {
	repository     Repository
	loader         DocumentLoader
	summarizer     Summarizer
	embedder       Embedder
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

type indexServiceOptions struct {
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

// IndexServiceOption は IndexService のオプション設定
type IndexServiceOption func(*indexServiceOptions)

// WithIndexLogger は IndexService にロガーを設定する
func WithIndexLogger(logger *slog.Logger) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.logger = logger
	}
}

// WithIndexPipelineConfig はパイプライン設定を上書きする
func WithIndexPipelineConfig(cfg *PipelineConfig) IndexServiceOption {
	return func(o *indexServiceOptions) {
		o.pipelineConfig = cfg
	}
}

// NewIndexService は新しいIndexServiceを作成する
func NewIndexService(
	repo Repository,
	loader DocumentLoader,
	summarizer Summarizer,
	embedder Embedder,
	opts ...IndexServiceOption,
) *IndexService {
	options := indexServiceOptions{
		pipelineConfig: DefaultPipelineConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.pipelineConfig == nil {
		options.pipelineConfig = DefaultPipelineConfig()
	}
	if options.pipelineConfig.WorkerCount <= 0 {
		options.pipelineConfig.WorkerCount = DefaultWorkerCount
	}

	return &IndexService{
		repository:     repo,
		loader:         loader,
		summarizer:     summarizer,
		embedder:       embedder,
		pipelineConfig: options.pipelineConfig,
		logger:         options.logger,
	}
}

// IndexRepository はリポジトリの全ファイルを要約・Embedding化して保存する。
// ファイル単位の失敗はスキップとして集計し、有効なレコードが1件もない場合のみ ErrNoValidEmbeddings を返す。
func (s *IndexService) IndexRepository(ctx context.Context, projectID uuid.UUID, repositoryURL string, credential mo.Option[string]) (*IndexResult, error) {
	startTime := time.Now()

	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	if strings.TrimSpace(repositoryURL) == "" {
		return nil, fmt.Errorf("%w: repository reference is required", ErrInvalidInput)
	}

	s.logger.Info("インデックス化を開始",
		"projectID", projectID,
		"repository", repositoryURL,
	)

	docs, err := s.loader.LoadDocuments(ctx, repositoryURL, credential)
	if err != nil {
		return nil, fmt.Errorf("リポジトリの読み込みに失敗: %w", err)
	}

	s.logger.Info("ファイルを読み込みました", "count", len(docs))

	outcomes, err := s.processDocuments(ctx, projectID, docs)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{
		ProjectID: projectID,
		Loaded:    len(docs),
		Skipped:   make(map[SkipReason]int),
		Languages: make(map[string]int),
	}

	languages := make(map[string]string, len(docs))
	for _, doc := range docs {
		languages[doc.Path] = doc.Language
	}

	dimension := s.embedder.Dimension()
	records := make([]*FileEmbeddingRecord, 0, len(outcomes))
	for _, o := range outcomes {
		if skip, ok := o.Result.Left(); ok {
			result.Skipped[skip.Reason]++
			continue
		}
		rec := o.Result.MustRight()
		if !isValidRecord(rec, dimension) {
			result.Skipped[SkipInvalidEmbedding]++
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		s.logger.Error("有効なEmbeddingが1件も生成されませんでした",
			"loaded", result.Loaded,
			"skipped", result.Skipped,
		)
		return nil, fmt.Errorf("%w: %d files loaded, %d skipped", ErrNoValidEmbeddings, result.Loaded, result.SkippedTotal())
	}

	for _, rec := range records {
		if err := s.repository.SaveFileEmbedding(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.FailedWrites++
			s.logger.Warn("レコードの保存に失敗", "file", rec.FileName, "error", err)
			continue
		}
		result.Indexed++
		if lang := languages[rec.FileName]; lang != "" {
			result.Languages[lang]++
		}
	}

	if result.Indexed > 0 {
		keep := make([]string, 0, len(docs))
		for _, doc := range docs {
			keep = append(keep, doc.Path)
		}
		removed, err := s.repository.DeleteFileEmbeddingsExcept(ctx, projectID, keep)
		if err != nil {
			s.logger.Warn("削除済みファイルのレコード削除に失敗", "error", err)
		} else {
			result.Removed = removed
		}
	}

	stored, err := s.repository.CountFileEmbeddings(ctx, projectID)
	if err != nil {
		s.logger.Warn("保存済みレコード数の取得に失敗", "error", err)
	} else {
		result.Stored = stored
	}

	result.Duration = time.Since(startTime)

	s.logger.Info("インデックス化が完了",
		"projectID", projectID,
		"loaded", result.Loaded,
		"indexed", result.Indexed,
		"skipped", result.SkippedTotal(),
		"failedWrites", result.FailedWrites,
		"removed", result.Removed,
		"stored", result.Stored,
		"duration", result.Duration,
	)

	return result, nil
}

// processDocuments は全ファイルを並行に処理する。外部呼び出しの並列度はクライアント側の Executor が制限する。
func (s *IndexService) processDocuments(ctx context.Context, projectID uuid.UUID, docs []*SourceDocument) ([]Outcome, error) {
	outcomes := make([]Outcome, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pipelineConfig.WorkerCount)

	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.processDocument(gctx, projectID, doc)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("インデックス化が中断されました: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("インデックス化が中断されました: %w", err)
	}

	return outcomes, nil
}
