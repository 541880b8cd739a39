package commits

import (
	"time"

	"github.com/google/uuid"
)

// CommitInfo はリポジトリから取得したコミットのメタデータ
type CommitInfo struct {
	Hash         string
	Message      string
	AuthorName   string
	AuthorAvatar string
	Date         time.Time
}

// CommitRecord は要約済みのコミット。(ProjectID, CommitHash) で一意。
type CommitRecord struct {
	ID                 uuid.UUID `json:"id"`
	ProjectID          uuid.UUID `json:"projectId"`
	CommitHash         string    `json:"commitHash"`
	CommitMessage      string    `json:"commitMessage"`
	CommitAuthorName   string    `json:"commitAuthorName"`
	CommitAuthorAvatar string    `json:"commitAuthorAvatar"`
	CommitDate         time.Time `json:"commitDate"`
	Summary            string    `json:"summary"`
}
