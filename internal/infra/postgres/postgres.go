package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"
)

// DBTX は *pgxpool.Pool と pgx.Tx の共通インターフェース
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// timestamptzToOption は NULL 許容のタイムスタンプを mo.Option に変換する
func timestamptzToOption(t pgtype.Timestamptz) mo.Option[time.Time] {
	if !t.Valid {
		return mo.None[time.Time]()
	}
	return mo.Some(t.Time)
}

// floatOptionToPtr は mo.Option をクエリパラメータ用のポインタに変換する（None は NULL）
func floatOptionToPtr(v mo.Option[float64]) *float64 {
	f, ok := v.Get()
	if !ok {
		return nil
	}
	return &f
}
