package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/project"
)

// ProjectRepository は project.Repository と commits.ProjectLocator を実装する PostgreSQL リポジトリ。
type ProjectRepository struct {
	db DBTX
}

// NewProjectRepository は新しい ProjectRepository を返す。
func NewProjectRepository(db DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

var (
	_ project.Repository     = (*ProjectRepository)(nil)
	_ commits.ProjectLocator = (*ProjectRepository)(nil)
)

const projectColumns = `id, name, repository_url, created_at, deleted_at`

func scanProject(row pgx.Row) (*project.Project, error) {
	p := &project.Project{}
	var deletedAt pgtype.Timestamptz
	if err := row.Scan(&p.ID, &p.Name, &p.RepositoryURL, &p.CreatedAt, &deletedAt); err != nil {
		return nil, err
	}
	p.DeletedAt = timestamptzToOption(deletedAt)
	return p, nil
}

func (r *ProjectRepository) CreateProject(ctx context.Context, p *project.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO projects (id, name, repository_url) VALUES ($1, $2, $3) RETURNING created_at`,
		p.ID, p.Name, p.RepositoryURL,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (r *ProjectRepository) GetProject(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

func (r *ProjectRepository) ListProjects(ctx context.Context) ([]*project.Project, error) {
	rows, err := r.db.Query(ctx, `SELECT `+projectColumns+` FROM projects WHERE deleted_at IS NULL ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	result := []*project.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return result, nil
}

func (r *ProjectRepository) ArchiveProject(ctx context.Context, id uuid.UUID) (*project.Project, error) {
	p, err := scanProject(r.db.QueryRow(ctx,
		`UPDATE projects SET deleted_at = COALESCE(deleted_at, now()) WHERE id = $1 RETURNING `+projectColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, project.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to archive project: %w", err)
	}
	return p, nil
}

// RepositoryURL はアーカイブされていないプロジェクトのリポジトリURLを返す
func (r *ProjectRepository) RepositoryURL(ctx context.Context, id uuid.UUID) (string, error) {
	var url string
	err := r.db.QueryRow(ctx, `SELECT repository_url FROM projects WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", project.ErrProjectNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get repository url: %w", err)
	}
	return url, nil
}
