package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/core/recommend"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

// ProjectService はプロジェクトのユースケース
type ProjectService interface {
	Register(ctx context.Context, params project.CreateParams) (*project.Project, error)
	Bootstrap(ctx context.Context, p *project.Project, credential mo.Option[string]) (*project.CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*project.Project, error)
	List(ctx context.Context) ([]*project.Project, error)
	Archive(ctx context.Context, id uuid.UUID) (*project.Project, error)
}

// Indexer はリポジトリを再インデックス化する
type Indexer interface {
	IndexRepository(ctx context.Context, projectID uuid.UUID, repositoryURL string, credential mo.Option[string]) (*ingestion.IndexResult, error)
}

// CommitService はコミットの取り込みと一覧を提供する
type CommitService interface {
	Poll(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error)
	List(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error)
}

// AskService は質問応答と履歴を提供する
type AskService interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.Answer, error)
	SaveAnswer(ctx context.Context, params ask.SaveAnswerParams) (*ask.QuestionRecord, error)
	ListQuestions(ctx context.Context, projectID uuid.UUID) ([]*ask.QuestionRecord, error)
}

// Recommender は読み始めるファイルを推薦する
type Recommender interface {
	Recommend(ctx context.Context, projectID uuid.UUID) ([]*recommend.Recommendation, error)
}

// Deps はルーターの依存関係
type Deps struct {
	Projects  ProjectService
	Indexer   Indexer
	Commits   CommitService
	Ask       AskService
	Recommend Recommender
	// ExecutorStatus は外部クライアントの Executor の状態を返す（/api/status）
	ExecutorStatus func() map[string]executor.Status
	// Jobs はインデックス化ジョブの実行先。nil の場合はルーター内で作成する
	Jobs *IndexJobs
	// APIToken が空でなければ Bearer 認証を要求する
	APIToken string
	Logger   *slog.Logger
}

// NewRouter は API のルーターを作成する
func NewRouter(deps *Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	jobs := deps.Jobs
	if jobs == nil {
		jobs = NewIndexJobs(context.Background(), logger)
	}
	h := &handler{deps: deps, jobs: jobs, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(deps.APIToken))

		r.Get("/status", h.status)
		r.Post("/projects", h.createProject)
		r.Get("/projects", h.listProjects)

		r.Route("/projects/{projectID}", func(r chi.Router) {
			r.Use(projectIDParam)

			r.Get("/", h.getProject)
			r.Delete("/", h.archiveProject)
			r.Post("/index", h.indexProject)
			r.Get("/index", h.indexStatus)
			r.Post("/commits/poll", h.pollCommits)
			r.Get("/commits", h.listCommits)
			r.Post("/ask", h.askQuestion)
			r.Post("/questions", h.saveAnswer)
			r.Get("/questions", h.listQuestions)
			r.Get("/recommendations", h.recommendFiles)
		})
	})

	return r
}
