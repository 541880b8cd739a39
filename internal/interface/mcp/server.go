package mcp

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/core/recommend"
)

const (
	// ServerName は MCP サーバー名
	ServerName = "repo-qa"
	// ServerVersion は MCP サーバーのバージョン
	ServerVersion = "1.0.0"
)

// Asker は質問に回答する
type Asker interface {
	Ask(ctx context.Context, params ask.AskParams) (*ask.Answer, error)
}

// CommitPoller はコミットを取り込む
type CommitPoller interface {
	Poll(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error)
}

// ProjectLister はプロジェクト一覧を返す
type ProjectLister interface {
	List(ctx context.Context) ([]*project.Project, error)
}

// Recommender は読み始めるファイルを推薦する
type Recommender interface {
	Recommend(ctx context.Context, projectID uuid.UUID) ([]*recommend.Recommendation, error)
}

// Server は repo-qa のユースケースを MCP ツールとして公開する
type Server struct {
	mcp         *server.MCPServer
	asker       Asker
	poller      CommitPoller
	projects    ProjectLister
	recommender Recommender
	logger      *slog.Logger
}

// NewServer は MCP サーバーを作成し、ツールを登録する
func NewServer(asker Asker, poller CommitPoller, projects ProjectLister, recommender Recommender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:         server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		asker:       asker,
		poller:      poller,
		projects:    projects,
		recommender: recommender,
		logger:      logger,
	}

	s.mcp.AddTool(askQuestionTool(), s.handleAskQuestion)
	s.mcp.AddTool(pollCommitsTool(), s.handlePollCommits)
	s.mcp.AddTool(listProjectsTool(), s.handleListProjects)
	s.mcp.AddTool(recommendFilesTool(), s.handleRecommendFiles)

	return s
}

// Serve は stdio 上で MCP サーバーを動かす。標準出力はプロトコル専用になる。
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(stderr, "", log.LstdFlags))

	s.logger.Info("MCPサーバーを起動します", "name", ServerName, "version", ServerVersion)
	return stdio.Listen(ctx, stdin, stdout)
}
