package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/search"
)

// SearchRepository は core/search.Repository を実装する PostgreSQL リポジトリ。
type SearchRepository struct {
	db DBTX
}

// NewSearchRepository は新しい SearchRepository を返す。
func NewSearchRepository(db DBTX) *SearchRepository {
	return &SearchRepository{db: db}
}

var _ search.Repository = (*SearchRepository)(nil)

// 類似度はコサイン距離から 1 - distance で求める
const searchSimilar = `
SELECT id, file_name, source_code, summary, 1 - (embedding <=> $2::vector) AS similarity
FROM file_embeddings
WHERE project_id = $1
  AND ($3::float8 IS NULL OR 1 - (embedding <=> $2::vector) > $3::float8)
ORDER BY similarity DESC, created_at ASC, id ASC
LIMIT $4`

func (r *SearchRepository) SearchSimilar(ctx context.Context, projectID uuid.UUID, queryVector []float32, minSimilarity mo.Option[float64], limit int) ([]*search.Match, error) {
	rows, err := r.db.Query(ctx, searchSimilar,
		projectID,
		pgvector.NewVector(queryVector),
		floatOptionToPtr(minSimilarity),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar files: %w", err)
	}
	defer rows.Close()

	var matches []*search.Match
	for rows.Next() {
		m := &search.Match{}
		if err := rows.Scan(&m.ID, &m.FileName, &m.SourceCode, &m.Summary, &m.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return matches, nil
}
