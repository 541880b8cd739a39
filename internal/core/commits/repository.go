package commits

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository はコミット要約の永続化インターフェース
type Repository interface {
	// ListCommitHashes は保存済みのコミットハッシュを返す
	ListCommitHashes(ctx context.Context, projectID uuid.UUID) ([]string, error)
	// InsertCommits は入力順にコミットを保存し、新たに保存されたものだけを返す。
	// 既存の (projectID, commitHash) は無視する。
	InsertCommits(ctx context.Context, projectID uuid.UUID, records []*CommitRecord) ([]*CommitRecord, error)
	// ListCommits は保存済みのコミットを新しい順に返す
	ListCommits(ctx context.Context, projectID uuid.UUID) ([]*CommitRecord, error)
}

// ProjectLocator はプロジェクトのリポジトリURLを解決する
type ProjectLocator interface {
	RepositoryURL(ctx context.Context, projectID uuid.UUID) (string, error)
}

// CommitSource はリポジトリのコミット履歴と差分を提供する
type CommitSource interface {
	// ListCommits は新しい順に最大 limit 件のコミットを返す
	ListCommits(ctx context.Context, repositoryURL string, credential mo.Option[string], limit int) ([]CommitInfo, error)
	// CommitDiff は親コミットとの差分を maxChars 文字以内で返す
	CommitDiff(ctx context.Context, repositoryURL string, credential mo.Option[string], hash string, maxChars int) (string, error)
}

// Summarizer はコミット差分の要約を生成する
type Summarizer interface {
	SummarizeCommit(ctx context.Context, diff string) (string, error)
}
