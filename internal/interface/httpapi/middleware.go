package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const projectIDKey contextKey = "projectID"

// requestLogger はリクエストごとに slog で1行出力する
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("HTTPリクエスト",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"requestID", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// bearerAuth は token が設定されている場合に Authorization ヘッダーを検証する
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		expected := []byte(token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="repo-qa"`)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// projectIDParam はパスの projectID を検証してコンテキストに載せる
func projectIDParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "projectID"))
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusBadRequest, "invalid projectID")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), projectIDKey, id)))
	})
}

func projectIDFrom(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(projectIDKey).(uuid.UUID)
	return id
}
