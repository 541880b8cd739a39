package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Repository は類似度検索のデータアクセスインターフェース
type Repository interface {
	// SearchSimilar はプロジェクト内でベクトル検索を実行する。
	// 結果は類似度の降順（同値は作成日時・IDの昇順）で、minSimilarity が指定されていればそれを超えるものに限る。
	SearchSimilar(ctx context.Context, projectID uuid.UUID, queryVector []float32, minSimilarity mo.Option[float64], limit int) ([]*Match, error)
}
