package database

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"text/template"
)

//go:embed schema/schema.sql.tmpl
var schemaTemplate string

var schemaTmpl = template.Must(template.New("schema").Parse(schemaTemplate))

// RenderSchema は埋め込み次元数 dimension を適用したスキーマDDLを返す
func RenderSchema(dimension int) (string, error) {
	if dimension <= 0 {
		return "", fmt.Errorf("embedding dimension must be positive: %d", dimension)
	}

	var buf bytes.Buffer
	if err := schemaTmpl.Execute(&buf, struct{ Dimension int }{Dimension: dimension}); err != nil {
		return "", fmt.Errorf("failed to render schema: %w", err)
	}
	return buf.String(), nil
}

// Migrate はスキーマを適用する。DDLはすべて IF NOT EXISTS で冪等。
// 適用後はプールの接続を作り直し、vector 型を登録させる。
func (db *DB) Migrate(ctx context.Context, dimension int) error {
	ddl, err := RenderSchema(dimension)
	if err != nil {
		return err
	}

	if err := db.applySchema(ctx, ddl); err != nil {
		return err
	}
	db.Pool.Reset()

	slog.Info("スキーマを適用しました", "dimension", dimension)
	return nil
}

func (db *DB) applySchema(ctx context.Context, ddl string) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// 複数プロセスからの同時マイグレーションを直列化する
	lockID := GenerateLockID("repo-qa", "migrate")
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			slog.Warn("マイグレーションロックの解放に失敗", "error", err)
		}
	}()

	if _, err := conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
