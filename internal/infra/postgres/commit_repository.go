package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/platform/database"
)

// CommitRepository は commits.Repository を実装する PostgreSQL リポジトリ。
type CommitRepository struct {
	db DBTX
}

// NewCommitRepository は新しい CommitRepository を返す。
func NewCommitRepository(db DBTX) *CommitRepository {
	return &CommitRepository{db: db}
}

var _ commits.Repository = (*CommitRepository)(nil)

func (r *CommitRepository) ListCommitHashes(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT commit_hash FROM commits WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commit hashes: %w", err)
	}
	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan commit hashes: %w", err)
	}
	return hashes, nil
}

const insertCommit = `
INSERT INTO commits (id, project_id, commit_hash, commit_message, commit_author_name, commit_author_avatar, commit_date, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id, commit_hash) DO NOTHING
RETURNING id`

// InsertCommits は入力順にコミットを保存し、新たに保存されたものだけを返す。
// プロジェクト単位のアドバイザリロックで同時ポーリングを直列化し、一意制約で重複を防ぐ。
func (r *CommitRepository) InsertCommits(ctx context.Context, projectID uuid.UUID, records []*commits.CommitRecord) ([]*commits.CommitRecord, error) {
	if len(records) == 0 {
		return []*commits.CommitRecord{}, nil
	}

	return database.Transact(ctx, r.db, func(tx pgx.Tx) ([]*commits.CommitRecord, error) {
		if err := database.AcquireXactLock(ctx, tx, database.GenerateLockID("commits", projectID.String())); err != nil {
			return nil, err
		}

		batch := &pgx.Batch{}
		for _, rec := range records {
			if rec.ID == uuid.Nil {
				rec.ID = uuid.New()
			}
			rec.ProjectID = projectID
			batch.Queue(insertCommit,
				rec.ID,
				projectID,
				rec.CommitHash,
				rec.CommitMessage,
				rec.CommitAuthorName,
				rec.CommitAuthorAvatar,
				rec.CommitDate,
				rec.Summary,
			)
		}

		br := tx.SendBatch(ctx, batch)
		inserted := make([]*commits.CommitRecord, 0, len(records))
		for _, rec := range records {
			var id uuid.UUID
			err := br.QueryRow().Scan(&id)
			if errors.Is(err, pgx.ErrNoRows) {
				continue
			}
			if err != nil {
				_ = br.Close()
				return nil, fmt.Errorf("failed to insert commit %s: %w", rec.CommitHash, err)
			}
			inserted = append(inserted, rec)
		}
		if err := br.Close(); err != nil {
			return nil, fmt.Errorf("failed to close batch: %w", err)
		}
		return inserted, nil
	})
}

func (r *CommitRepository) ListCommits(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, project_id, commit_hash, commit_message, commit_author_name, commit_author_avatar, commit_date, summary
FROM commits
WHERE project_id = $1
ORDER BY commit_date DESC, created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	defer rows.Close()

	result := []*commits.CommitRecord{}
	for rows.Next() {
		c := &commits.CommitRecord{}
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.CommitHash, &c.CommitMessage, &c.CommitAuthorName, &c.CommitAuthorAvatar, &c.CommitDate, &c.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return result, nil
}
