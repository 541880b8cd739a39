package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-qa/internal/platform/database"
)

// MigrateAction はデータベーススキーマを適用するコマンドのアクション
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}

	db, err := database.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, cfg.OpenAI.EmbeddingDimension); err != nil {
		return err
	}

	fmt.Printf("✓ スキーマを適用しました (embedding dimension: %d)\n", cfg.OpenAI.EmbeddingDimension)
	return nil
}
