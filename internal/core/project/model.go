package project

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Project はインデックス化対象のリポジトリ。ファイル要約・コミット・質問履歴を所有する。
type Project struct {
	ID            uuid.UUID            `json:"id"`
	Name          string               `json:"name"`
	RepositoryURL string               `json:"repositoryUrl"`
	CreatedAt     time.Time            `json:"createdAt"`
	DeletedAt     mo.Option[time.Time] `json:"deletedAt"`
}

// Archived はアーカイブ済みかを返す
func (p *Project) Archived() bool {
	return p.DeletedAt.IsPresent()
}
