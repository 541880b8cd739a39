package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/core/recommend"
	"github.com/jinford/repo-qa/internal/core/search"
	"github.com/jinford/repo-qa/internal/infra/git"
	"github.com/jinford/repo-qa/internal/platform/executor"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor はエラーを HTTP ステータスに対応付ける
func statusFor(err error) int {
	var notFound *git.RepositoryNotFoundError
	var access *git.AccessError

	switch {
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, ask.ErrInvalidInput),
		errors.Is(err, ingestion.ErrInvalidInput),
		errors.Is(err, commits.ErrInvalidInput),
		errors.Is(err, search.ErrInvalidInput),
		errors.Is(err, recommend.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrProjectNotFound), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &access):
		return http.StatusForbidden
	case errors.Is(err, ingestion.ErrNoValidEmbeddings),
		errors.Is(err, executor.ErrTransientFailureExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
