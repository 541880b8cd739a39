package project

import (
	"context"

	"github.com/google/uuid"
)

// Repository はプロジェクトの永続化インターフェース
type Repository interface {
	CreateProject(ctx context.Context, p *Project) error
	// GetProject は存在しない場合 ErrProjectNotFound を返す
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	// ListProjects はアーカイブされていないプロジェクトを作成日時の新しい順に返す
	ListProjects(ctx context.Context) ([]*Project, error)
	// ArchiveProject は deleted_at を設定する。存在しない場合 ErrProjectNotFound を返す
	ArchiveProject(ctx context.Context, id uuid.UUID) (*Project, error)
}
