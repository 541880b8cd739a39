package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	appcli "github.com/jinford/repo-qa/internal/interface/cli"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func projectFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "project",
		Usage:    "プロジェクトID (UUID)",
		Required: true,
	}
}

func credentialFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "credential",
		Usage:   "リポジトリのアクセストークン（省略時は GIT_TOKEN）",
		Sources: cli.EnvVars("REPOQA_GIT_CREDENTIAL"),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 標準出力は回答と MCP プロトコルに使うため、ログは標準エラー出力へ
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	app := &cli.Command{
		Name:  "repo-qa",
		Usage: "リポジトリのファイル要約を埋め込み検索し、コードに関する質問に回答する",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "データベーススキーマを適用",
				Flags:  []cli.Flag{envFlag()},
				Action: appcli.MigrateAction,
			},
			{
				Name:  "project",
				Usage: "プロジェクト管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "プロジェクトを作成し、インデックス化とコミット取り込みを実行",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "name",
								Usage:    "プロジェクト名",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "url",
								Usage:    "GitリポジトリURL",
								Required: true,
							},
							credentialFlag(),
						},
						Action: appcli.ProjectCreateAction,
					},
					{
						Name:   "list",
						Usage:  "プロジェクト一覧を表示",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.ProjectListAction,
					},
					{
						Name:   "archive",
						Usage:  "プロジェクトをアーカイブ",
						Flags:  []cli.Flag{envFlag(), projectFlag()},
						Action: appcli.ProjectArchiveAction,
					},
				},
			},
			{
				Name:   "index",
				Usage:  "プロジェクトのリポジトリを再インデックス化",
				Flags:  []cli.Flag{envFlag(), projectFlag(), credentialFlag()},
				Action: appcli.IndexAction,
			},
			{
				Name:  "commits",
				Usage: "コミット管理コマンド",
				Commands: []*cli.Command{
					{
						Name:   "poll",
						Usage:  "新しいコミットを取り込んで要約",
						Flags:  []cli.Flag{envFlag(), projectFlag()},
						Action: appcli.CommitsPollAction,
					},
					{
						Name:  "list",
						Usage: "保存済みのコミットを表示",
						Flags: []cli.Flag{
							envFlag(),
							projectFlag(),
							&cli.BoolFlag{
								Name:  "refresh",
								Usage: "表示前にコミットを取り込む",
							},
						},
						Action: appcli.CommitsListAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "コードに関する質問に回答",
				Flags: []cli.Flag{
					envFlag(),
					projectFlag(),
					&cli.StringFlag{
						Name:     "question",
						Aliases:  []string{"q"},
						Usage:    "質問文",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "回答を質問履歴に保存",
					},
					&cli.StringFlag{
						Name:  "user",
						Usage: "保存時のユーザーID",
					},
				},
				Action: appcli.AskAction,
			},
			{
				Name:  "recommend",
				Usage: "最初に読むのに向いたファイルを推薦",
				Flags: []cli.Flag{
					envFlag(),
					projectFlag(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "表示件数の上限（RECOMMEND_LIMIT を超える指定は無視）",
					},
				},
				Action: appcli.RecommendAction,
			},
			{
				Name:  "questions",
				Usage: "質問履歴コマンド",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "質問履歴を表示",
						Flags:  []cli.Flag{envFlag(), projectFlag()},
						Action: appcli.QuestionsListAction,
					},
				},
			},
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTPサーバを起動",
						Flags: []cli.Flag{
							envFlag(),
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
								Value: 8080,
							},
							&cli.BoolFlag{
								Name:  "migrate",
								Usage: "起動前にスキーマを適用",
							},
						},
						Action: appcli.ServerStartAction,
					},
				},
			},
			{
				Name:  "mcp",
				Usage: "MCPサーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:   "serve",
						Usage:  "stdio で MCP サーバを起動",
						Flags:  []cli.Flag{envFlag()},
						Action: appcli.MCPServeAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
