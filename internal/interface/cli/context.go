package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/platform/config"
	"github.com/jinford/repo-qa/internal/platform/container"
	"github.com/jinford/repo-qa/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Logger    *slog.Logger
	Container *container.ServiceContainer
}

// loadConfig は設定を読み込みロガーを初期化する
func loadConfig(envFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	appLogger := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	return cfg, appLogger, nil
}

// NewAppContext は設定ファイルを読み込み、DBに接続して AppContext を作成する
func NewAppContext(ctx context.Context, envFile string) (*AppContext, error) {
	cfg, appLogger, err := loadConfig(envFile)
	if err != nil {
		return nil, err
	}

	cont, err := container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Logger:    appLogger,
		Container: cont,
	}, nil
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

func parseProjectID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("プロジェクトIDが不正です: %q: %w", s, err)
	}
	return id, nil
}

func optionalCredential(s string) mo.Option[string] {
	if s == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}
