package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jinford/repo-qa/internal/core/ask"
)

// QuestionRepository は ask.QuestionRepository を実装する PostgreSQL リポジトリ。
type QuestionRepository struct {
	db DBTX
}

// NewQuestionRepository は新しい QuestionRepository を返す。
func NewQuestionRepository(db DBTX) *QuestionRepository {
	return &QuestionRepository{db: db}
}

var _ ask.QuestionRepository = (*QuestionRepository)(nil)

func (r *QuestionRepository) CreateQuestion(ctx context.Context, record *ask.QuestionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	refs := record.FileReferences
	if refs == nil {
		refs = []ask.FileReference{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to marshal file references: %w", err)
	}

	err = r.db.QueryRow(ctx, `
INSERT INTO questions (id, project_id, user_id, question, answer, file_references)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		record.ID, record.ProjectID, record.UserID, record.Question, record.Answer, refsJSON,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

func (r *QuestionRepository) ListQuestions(ctx context.Context, projectID uuid.UUID) ([]*ask.QuestionRecord, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, project_id, user_id, question, answer, file_references, created_at
FROM questions
WHERE project_id = $1
ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	result := []*ask.QuestionRecord{}
	for rows.Next() {
		q := &ask.QuestionRecord{}
		var refsJSON []byte
		if err := rows.Scan(&q.ID, &q.ProjectID, &q.UserID, &q.Question, &q.Answer, &refsJSON, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal(refsJSON, &q.FileReferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file references: %w", err)
		}
		result = append(result, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return result, nil
}
