package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/recommend"
)

// FileEmbeddingRepository は ingestion.Repository を実装する PostgreSQL リポジトリ。
type FileEmbeddingRepository struct {
	db DBTX
}

// NewFileEmbeddingRepository は新しい FileEmbeddingRepository を返す。
func NewFileEmbeddingRepository(db DBTX) *FileEmbeddingRepository {
	return &FileEmbeddingRepository{db: db}
}

var (
	_ ingestion.Repository = (*FileEmbeddingRepository)(nil)
	_ recommend.Repository = (*FileEmbeddingRepository)(nil)
)

const upsertFileEmbedding = `
INSERT INTO file_embeddings (id, project_id, file_name, source_code, summary, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
ON CONFLICT (project_id, file_name) DO UPDATE
SET source_code = EXCLUDED.source_code,
    summary     = EXCLUDED.summary,
    embedding   = EXCLUDED.embedding
RETURNING id, created_at`

// SaveFileEmbedding は要約とベクトルを1文で書き込む。再インデックス時は既存の行を置き換える。
func (r *FileEmbeddingRepository) SaveFileEmbedding(ctx context.Context, record *ingestion.FileEmbeddingRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, upsertFileEmbedding,
		record.ID,
		record.ProjectID,
		record.FileName,
		record.SourceCode,
		record.Summary,
		pgvector.NewVector(record.Embedding),
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save file embedding %s: %w", record.FileName, err)
	}
	return nil
}

// DeleteFileEmbeddingsExcept は keep に含まれないファイルのレコードを削除する
func (r *FileEmbeddingRepository) DeleteFileEmbeddingsExcept(ctx context.Context, projectID uuid.UUID, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}

	tag, err := r.db.Exec(ctx,
		`DELETE FROM file_embeddings WHERE project_id = $1 AND NOT (file_name = ANY($2::text[]))`,
		projectID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale file embeddings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountFileEmbeddings はプロジェクトのレコード数を返す
func (r *FileEmbeddingRepository) CountFileEmbeddings(ctx context.Context, projectID uuid.UUID) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM file_embeddings WHERE project_id = $1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count file embeddings: %w", err)
	}
	return n, nil
}

// ListIndexedFiles はプロジェクトのファイル名・バイト数・要約をファイル名順に返す
func (r *FileEmbeddingRepository) ListIndexedFiles(ctx context.Context, projectID uuid.UUID) ([]*recommend.IndexedFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT file_name, octet_length(source_code), summary FROM file_embeddings WHERE project_id = $1 ORDER BY file_name`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	defer rows.Close()

	var files []*recommend.IndexedFile
	for rows.Next() {
		f := &recommend.IndexedFile{}
		if err := rows.Scan(&f.Path, &f.Size, &f.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan indexed file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate indexed files: %w", err)
	}
	return files, nil
}
