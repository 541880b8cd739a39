package ingestion

import (
	"context"

	"github.com/google/uuid"
)

// Repository はインデックス化で使うデータアクセスインターフェース
type Repository interface {
	// SaveFileEmbedding はレコードを保存する。同じプロジェクト・ファイル名のレコードは置き換える。
	SaveFileEmbedding(ctx context.Context, record *FileEmbeddingRecord) error

	// DeleteFileEmbeddingsExcept は keep に含まれないファイル名のレコードを削除し、削除件数を返す
	DeleteFileEmbeddingsExcept(ctx context.Context, projectID uuid.UUID, keep []string) (int64, error)

	// CountFileEmbeddings はプロジェクトに保存されているレコード数を返す
	CountFileEmbeddings(ctx context.Context, projectID uuid.UUID) (int, error)
}
