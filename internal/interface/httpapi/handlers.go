package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

type handler struct {
	deps   *Deps
	jobs   *IndexJobs
	logger *slog.Logger
}

type createProjectRequest struct {
	Name          string `json:"name"`
	RepositoryURL string `json:"repositoryUrl"`
	Credential    string `json:"credential,omitempty"`
}

type indexRequest struct {
	Credential string `json:"credential,omitempty"`
}

type askRequest struct {
	Question string `json:"question"`
	UserID   string `json:"userId,omitempty"`
	// Save が true の場合、ストリーム完了後に回答を履歴へ保存する
	Save bool `json:"save,omitempty"`
}

type saveAnswerRequest struct {
	UserID         string              `json:"userId"`
	Question       string              `json:"question"`
	Answer         string              `json:"answer"`
	FileReferences []ask.FileReference `json:"fileReferences"`
}

// decodeBody は JSON ボディを読む。空ボディは許容する。
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// orEmpty は nil スライスを空配列として返す（JSON で null にしない）
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func optionalCredential(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "error", err)
	} else {
		h.logger.WarnContext(r.Context(), msg, "error", err)
	}
	writeError(w, status, err.Error())
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	executors := map[string]executor.Status{}
	if h.deps.ExecutorStatus != nil {
		executors = h.deps.ExecutorStatus()
	}
	writeJSON(w, http.StatusOK, map[string]any{"executors": executors})
}

func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.deps.Projects.Register(r.Context(), project.CreateParams{
		Name:          req.Name,
		RepositoryURL: req.RepositoryURL,
	})
	if err != nil {
		h.fail(w, r, err, "プロジェクト作成に失敗")
		return
	}

	// 初回のインデックス化とコミット取り込みはジョブとして実行する
	credential := optionalCredential(req.Credential)
	job, _ := h.jobs.Start(r.Context(), p.ID, func(ctx context.Context) (*ingestion.IndexResult, error) {
		result, err := h.deps.Projects.Bootstrap(ctx, p, credential)
		if result == nil {
			return nil, err
		}
		return result.Index, err
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"project": p,
		"job":     job,
	})
}

func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.deps.Projects.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "プロジェクト一覧の取得に失敗")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(projects))
}

func (h *handler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Projects.Get(r.Context(), projectIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "プロジェクトの取得に失敗")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) archiveProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Projects.Archive(r.Context(), projectIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "プロジェクトのアーカイブに失敗")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) indexProject(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	p, err := h.deps.Projects.Get(ctx, projectIDFrom(ctx))
	if err != nil {
		h.fail(w, r, err, "プロジェクトの取得に失敗")
		return
	}
	if p.Archived() {
		writeError(w, http.StatusNotFound, project.ErrProjectNotFound.Error())
		return
	}

	credential := optionalCredential(req.Credential)
	job, started := h.jobs.Start(ctx, p.ID, func(ctx context.Context) (*ingestion.IndexResult, error) {
		return h.deps.Indexer.IndexRepository(ctx, p.ID, p.RepositoryURL, credential)
	})
	if !started {
		writeJSON(w, http.StatusConflict, job)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *handler) indexStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.jobs.Get(projectIDFrom(r.Context()))
	if !ok {
		writeError(w, http.StatusNotFound, "no index job for project")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *handler) pollCommits(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Commits.Poll(r.Context(), projectIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "コミット取り込みに失敗")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(records))
}

func (h *handler) listCommits(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Commits.List(r.Context(), projectIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "コミット一覧の取得に失敗")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(records))
}

func (h *handler) saveAnswer(w http.ResponseWriter, r *http.Request) {
	var req saveAnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.deps.Ask.SaveAnswer(r.Context(), ask.SaveAnswerParams{
		ProjectID:      projectIDFrom(r.Context()),
		UserID:         req.UserID,
		Question:       req.Question,
		Answer:         req.Answer,
		FileReferences: req.FileReferences,
	})
	if err != nil {
		h.fail(w, r, err, "回答の保存に失敗")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *handler) listQuestions(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Ask.ListQuestions(r.Context(), projectIDFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err, "質問履歴の取得に失敗")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(records))
}

func (h *handler) recommendFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.deps.Projects.Get(ctx, projectIDFrom(ctx))
	if err != nil {
		h.fail(w, r, err, "プロジェクトの取得に失敗")
		return
	}
	if p.Archived() {
		writeError(w, http.StatusNotFound, project.ErrProjectNotFound.Error())
		return
	}

	recs, err := h.deps.Recommend.Recommend(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err, "推薦ファイルの取得に失敗")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": orEmpty(recs)})
}
