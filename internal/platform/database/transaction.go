package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner はトランザクションを開始できる接続（*pgxpool.Pool / pgx.Tx）
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Transact はトランザクションを開始して fn を実行し、成功時はコミット、失敗時はロールバックする
func Transact[T any](ctx context.Context, db TxBeginner, fn func(tx pgx.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
