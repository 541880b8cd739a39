package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/jinford/repo-qa/internal/core/ingestion"
)

// IndexJobState はインデックス化ジョブの状態
type IndexJobState string

const (
	IndexJobRunning   IndexJobState = "running"
	IndexJobSucceeded IndexJobState = "succeeded"
	IndexJobFailed    IndexJobState = "failed"
)

// IndexJob はプロジェクトごとの直近のインデックス化ジョブ
type IndexJob struct {
	ProjectID  uuid.UUID              `json:"projectId"`
	State      IndexJobState          `json:"state"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
	Result     *ingestion.IndexResult `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	// ErrorStatus はエラーを同期 API で返した場合の HTTP ステータス
	ErrorStatus int `json:"errorStatus,omitempty"`
}

type indexFunc func(ctx context.Context) (*ingestion.IndexResult, error)

// IndexJobs はインデックス化をリクエストのライフサイクルから切り離して実行する。
// ジョブは NewIndexJobs に渡した ctx の終了でのみキャンセルされる。
type IndexJobs struct {
	ctx    context.Context
	logger *slog.Logger

	mu   sync.Mutex
	jobs map[uuid.UUID]*IndexJob
	wg   sync.WaitGroup
}

// NewIndexJobs は新しい IndexJobs を作成する
func NewIndexJobs(ctx context.Context, logger *slog.Logger) *IndexJobs {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexJobs{
		ctx:    ctx,
		logger: logger,
		jobs:   make(map[uuid.UUID]*IndexJob),
	}
}

// Start はプロジェクトのジョブを開始する。
// 同じプロジェクトのジョブが実行中の場合は開始せず、そのジョブと false を返す。
func (j *IndexJobs) Start(reqCtx context.Context, projectID uuid.UUID, run indexFunc) (IndexJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if cur, ok := j.jobs[projectID]; ok && cur.State == IndexJobRunning {
		return *cur, false
	}

	job := &IndexJob{ProjectID: projectID, State: IndexJobRunning, StartedAt: time.Now()}
	j.jobs[projectID] = job

	// リクエストの値（リクエストID）は引き継ぎ、キャンセルはサーバーの ctx にだけ従う
	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	stop := context.AfterFunc(j.ctx, cancel)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer cancel()
		defer stop()

		result, err := run(ctx)
		j.finish(ctx, job, result, err)
	}()

	return *job, true
}

// Get はプロジェクトの直近のジョブを返す
func (j *IndexJobs) Get(projectID uuid.UUID) (IndexJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	job, ok := j.jobs[projectID]
	if !ok {
		return IndexJob{}, false
	}
	return *job, true
}

// Wait は実行中のジョブがすべて終了するまで待つ
func (j *IndexJobs) Wait() {
	j.wg.Wait()
}

func (j *IndexJobs) finish(ctx context.Context, job *IndexJob, result *ingestion.IndexResult, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now()
	job.FinishedAt = &now
	job.Result = result

	logger := j.logger.With("projectID", job.ProjectID, "requestID", middleware.GetReqID(ctx))

	if err != nil {
		job.State = IndexJobFailed
		job.Error = err.Error()
		job.ErrorStatus = statusFor(err)
		if errors.Is(err, ingestion.ErrNoValidEmbeddings) {
			logger.ErrorContext(ctx, "インデックス化ジョブで有効なEmbeddingが1件も保存されませんでした", "error", err)
		} else {
			logger.ErrorContext(ctx, "インデックス化ジョブが失敗しました", "error", err, "status", job.ErrorStatus)
		}
		return
	}

	job.State = IndexJobSucceeded
	logger.InfoContext(ctx, "インデックス化ジョブが完了しました", "duration", now.Sub(job.StartedAt))
}
