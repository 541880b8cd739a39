package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/jinford/repo-qa/internal/interface/httpapi"
	"github.com/jinford/repo-qa/internal/interface/mcp"
)

// ServerStartAction はHTTPサーバを起動するコマンドのアクション
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if cmd.Bool("migrate") {
		if err := appCtx.Container.Database().Migrate(ctx, appCtx.Config.OpenAI.EmbeddingDimension); err != nil {
			return err
		}
	}

	// ポートの決定: --port > SERVER_PORT
	port := appCtx.Config.Server.Port
	if cmd.IsSet("port") {
		port = int(cmd.Int("port"))
	}

	c := appCtx.Container
	jobs := httpapi.NewIndexJobs(ctx, appCtx.Logger)
	router := httpapi.NewRouter(&httpapi.Deps{
		Projects:  c.ProjectService,
		Indexer:   c.IndexService,
		Commits:   c.CommitPoller,
		Ask:       c.AskService,
		Recommend: c.Recommender,
		Jobs:      jobs,
		APIToken:  appCtx.Config.APIToken,
		Logger:    appCtx.Logger,

		ExecutorStatus: c.ExecutorStatus,
	})

	err = httpapi.ListenAndServe(ctx, fmt.Sprintf(":%d", port), router, appCtx.Logger)

	// 実行中のインデックス化ジョブは ctx の終了でキャンセルされる
	appCtx.Logger.Info("実行中のインデックス化ジョブの終了を待ちます")
	jobs.Wait()
	return err
}

// MCPServeAction は stdio で MCP サーバーを起動する
func MCPServeAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	c := appCtx.Container
	server := mcp.NewServer(c.AskService, c.CommitPoller, c.ProjectService, c.Recommender, appCtx.Logger)
	return server.Serve(ctx, os.Stdin, os.Stdout, os.Stderr)
}
