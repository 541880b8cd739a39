package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/ask"
)

type doneEvent struct {
	Outcome ask.Outcome `json:"outcome"`
}

// writeEvent は SSE のイベントを1つ書き込む。複数行のデータは行ごとに data: を付ける。
func writeEvent(w http.ResponseWriter, event, data string) error {
	var sb strings.Builder
	if event != "" {
		sb.WriteString("event: ")
		sb.WriteString(event)
		sb.WriteByte('\n')
	}
	for _, line := range strings.Split(data, "\n") {
		sb.WriteString("data: ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	if _, err := fmt.Fprint(w, sb.String()); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}

func writeJSONEvent(w http.ResponseWriter, event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeEvent(w, event, string(b))
}

// askQuestion は参照ファイル、回答の断片、終了状態の順に SSE で配信する
func (h *handler) askQuestion(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	projectID := projectIDFrom(ctx)

	answer, err := h.deps.Ask.Ask(ctx, ask.AskParams{
		ProjectID: mo.Some(projectID),
		Question:  req.Question,
	})
	if err != nil {
		h.fail(w, r, err, "質問の受付に失敗")
		return
	}
	stream := answer.Stream
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeJSONEvent(w, "references", answer.FileReferences); err != nil {
		h.logger.WarnContext(ctx, "参照ファイルの送信に失敗", "error", err)
		return
	}

	for {
		select {
		case token, ok := <-stream.Tokens():
			if !ok {
				outcome := stream.Outcome()
				if err := writeJSONEvent(w, "done", doneEvent{Outcome: outcome}); err != nil {
					h.logger.WarnContext(ctx, "終了イベントの送信に失敗", "error", err)
				}
				if req.Save && (outcome == ask.OutcomeCompleted || outcome == ask.OutcomeFallback) {
					h.saveStreamedAnswer(r, projectID, req, answer)
				}
				return
			}
			if err := writeEvent(w, "", token); err != nil {
				h.logger.InfoContext(ctx, "クライアントが切断しました", "projectID", projectID)
				return
			}
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "クライアントが切断しました", "projectID", projectID)
			return
		}
	}
}

func (h *handler) saveStreamedAnswer(r *http.Request, projectID uuid.UUID, req askRequest, answer *ask.Answer) {
	_, err := h.deps.Ask.SaveAnswer(r.Context(), ask.SaveAnswerParams{
		ProjectID:      projectID,
		UserID:         req.UserID,
		Question:       req.Question,
		Answer:         answer.Stream.Text(),
		FileReferences: answer.FileReferences,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "回答の保存に失敗", "projectID", projectID, "error", err)
	}
}
