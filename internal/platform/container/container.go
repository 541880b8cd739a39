package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/core/recommend"
	"github.com/jinford/repo-qa/internal/core/search"
	"github.com/jinford/repo-qa/internal/infra/git"
	"github.com/jinford/repo-qa/internal/infra/openai"
	"github.com/jinford/repo-qa/internal/infra/postgres"
	"github.com/jinford/repo-qa/internal/platform/config"
	"github.com/jinford/repo-qa/internal/platform/database"
	"github.com/jinford/repo-qa/internal/platform/executor"
	"github.com/jinford/repo-qa/internal/platform/tokenizer"
)

// ServiceContainer はアプリケーションの依存関係を保持する。
type ServiceContainer struct {
	ProjectService *project.Service
	IndexService   *ingestion.IndexService
	SearchEngine   *search.Engine
	AskService     *ask.AskService
	CommitPoller   *commits.Poller
	Recommender    *recommend.Service

	logger    *slog.Logger
	database  *database.DB
	executors map[string]*executor.Executor
}

type containerOptions struct {
	logger    *slog.Logger
	loader    *git.Loader
	generator ask.Generator
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerLoader はリポジトリローダーを差し替える
func WithContainerLoader(loader *git.Loader) ContainerOption {
	return func(opts *containerOptions) {
		opts.loader = loader
	}
}

// WithContainerGenerator は回答生成器を差し替える
func WithContainerGenerator(generator ask.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の DB を受け取りコンテナを生成する。
func NewContainerWithDB(cfg *config.Config, db *database.DB, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	// 外部サービスのクライアントごとに Executor を持たせる
	executors := make(map[string]*executor.Executor)
	newExecutor := func(name string) *executor.Executor {
		e := executor.New(
			executor.WithConcurrency(cfg.Executor.Concurrency),
			executor.WithMaxAttempts(cfg.Executor.MaxAttempts),
			executor.WithBaseBackoff(cfg.Executor.BaseBackoff),
			executor.WithRetryBuffer(cfg.Executor.RetryBuffer),
			executor.WithMaxJitter(cfg.Executor.MaxJitter),
			executor.WithMinInterval(cfg.Executor.MinInterval),
			executor.WithLogger(logger.With("client", name)),
		)
		executors[name] = e
		return e
	}

	// Repository loader (Git)
	loader := options.loader
	if loader == nil {
		loader = git.NewLoader(cfg.Git.CloneDir,
			git.WithDefaultToken(cfg.Git.Token),
			git.WithSSHKey(cfg.Git.SSHKeyPath, cfg.Git.SSHPassword),
			git.WithMaxFileBytes(cfg.Indexing.MaxFileBytes),
			git.WithAllowLocal(cfg.Git.AllowLocal),
			git.WithLoaderLogger(logger),
		)
	}

	// 要約用 Chat クライアント (OpenAI 互換)
	summaryChat, err := openai.NewChatClient(cfg.OpenAI.APIKey,
		openai.WithChatBaseURL(cfg.OpenAI.BaseURL),
		openai.WithChatModel(cfg.OpenAI.LLMModel),
		openai.WithChatExecutor(newExecutor("summarizer")),
		openai.WithChatLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
	}
	summarizer := openai.NewSummarizer(summaryChat)

	// 回答生成用 Chat クライアント。要約とは別の Executor で並列度を管理する
	generator := options.generator
	if generator == nil {
		chat, err := openai.NewChatClient(cfg.OpenAI.APIKey,
			openai.WithChatBaseURL(cfg.OpenAI.BaseURL),
			openai.WithChatModel(cfg.OpenAI.LLMModel),
			openai.WithChatExecutor(newExecutor("answer")),
			openai.WithChatLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAI LLMクライアント初期化に失敗しました: %w", err)
		}
		generator = chat
	}

	// Embedder (OpenAI 互換)
	embedder, err := openai.NewEmbedder(cfg.OpenAI.EmbeddingAPIKey,
		openai.WithEmbeddingBaseURL(cfg.OpenAI.EmbeddingBaseURL),
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		openai.WithEmbeddingExecutor(newExecutor("embedder")),
		openai.WithEmbeddingLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
	}

	// 質問の Embedding はインデックス化の待ち行列に並ばないよう別の Executor を使う
	queryEmbedder, err := openai.NewEmbedder(cfg.OpenAI.EmbeddingAPIKey,
		openai.WithEmbeddingBaseURL(cfg.OpenAI.EmbeddingBaseURL),
		openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
		openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		openai.WithEmbeddingExecutor(newExecutor("retrieval")),
		openai.WithEmbeddingLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
	}

	// Repository (PostgreSQL)
	projectRepo := postgres.NewProjectRepository(db.Pool)
	fileRepo := postgres.NewFileEmbeddingRepository(db.Pool)
	searchRepo := postgres.NewSearchRepository(db.Pool)
	commitRepo := postgres.NewCommitRepository(db.Pool)
	questionRepo := postgres.NewQuestionRepository(db.Pool)

	// IndexService
	indexService := ingestion.NewIndexService(
		fileRepo,
		loader,
		summarizer,
		embedder,
		ingestion.WithIndexLogger(logger),
		ingestion.WithIndexPipelineConfig(&ingestion.PipelineConfig{
			MaxSummaryInputChars: cfg.Indexing.MaxSummaryInputChars,
			MinSummaryLength:     cfg.Indexing.MinSummaryLength,
			MinPrintableRatio:    cfg.Indexing.MinPrintableRatio,
			WorkerCount:          ingestion.DefaultWorkerCount,
		}),
	)

	// SearchEngine
	searchEngine := search.NewEngine(searchRepo, queryEmbedder,
		search.WithTiers(search.TiersFromThresholds(cfg.Retrieval.Thresholds)),
		search.WithLimit(cfg.Retrieval.Limit),
		search.WithMinResults(cfg.Retrieval.MinResults),
		search.WithEngineLogger(logger),
	)

	// AskService
	askOpts := []ask.AskServiceOption{
		ask.WithAskLogger(logger),
		ask.WithTimeout(cfg.Answer.Timeout),
	}
	if counter, err := tokenizer.New(""); err != nil {
		logger.Warn("トークナイザーを初期化できませんでした。コンテキストのトークン制限は適用されません", "error", err)
	} else {
		askOpts = append(askOpts, ask.WithTokenTrimmer(counter, cfg.Answer.MaxContextToken))
	}
	askService := ask.NewAskService(searchEngine, generator, questionRepo, askOpts...)

	// CommitPoller
	poller := commits.NewPoller(commitRepo, projectRepo, loader, summarizer,
		commits.WithPollLimit(cfg.Commits.PollLimit),
		commits.WithMaxDiffChars(cfg.Commits.MaxDiffChars),
		commits.WithPollerLogger(logger),
	)

	// ProjectService
	projectService := project.NewService(projectRepo, loader, indexService, poller,
		project.WithServiceLogger(logger),
	)

	// Recommender
	recommender := recommend.NewService(fileRepo,
		recommend.WithLimit(cfg.Retrieval.RecommendLimit),
		recommend.WithServiceLogger(logger),
	)

	return &ServiceContainer{
		ProjectService: projectService,
		IndexService:   indexService,
		SearchEngine:   searchEngine,
		AskService:     askService,
		CommitPoller:   poller,
		Recommender:    recommender,
		logger:         logger,
		database:       db,
		executors:      executors,
	}, nil
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す。
func (c *ServiceContainer) Database() *database.DB {
	if c == nil {
		return nil
	}
	return c.database
}

// ExecutorStatus はクライアントごとの Executor の状態を返す。
func (c *ServiceContainer) ExecutorStatus() map[string]executor.Status {
	if c == nil {
		return nil
	}
	status := make(map[string]executor.Status, len(c.executors))
	for name, e := range c.executors {
		status[name] = e.Status()
	}
	return status
}
