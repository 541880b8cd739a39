package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/ask"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/recommend"
)

type askResponse struct {
	Answer         string              `json:"answer"`
	Outcome        ask.Outcome         `json:"outcome"`
	FileReferences []ask.FileReference `json:"fileReferences"`
}

type commitSummary struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
	Summary string `json:"summary"`
}

func (s *Server) handleAskQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	projectID, err := projectIDArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question parameter is required"), nil
	}

	answer, err := s.asker.Ask(ctx, ask.AskParams{ProjectID: mo.Some(projectID), Question: question})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// MCP は一括応答のためストリームを最後まで読む
	text, outcome, err := answer.Stream.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("回答の読み出しに失敗しました: %w", err)
	}

	s.logger.Info("MCP経由の質問に回答しました", "projectID", projectID, "outcome", outcome)

	return jsonResult(askResponse{
		Answer:         text,
		Outcome:        outcome,
		FileReferences: answer.FileReferences,
	})
}

func (s *Server) handlePollCommits(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	projectID, err := projectIDArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	records, err := s.poller.Poll(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(map[string]any{
		"inserted": len(records),
		"commits":  toCommitSummaries(records),
	})
}

func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := s.projects.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	items := make([]map[string]string, 0, len(projects))
	for _, p := range projects {
		items = append(items, map[string]string{
			"id":            p.ID.String(),
			"name":          p.Name,
			"repositoryUrl": p.RepositoryURL,
		})
	}
	return jsonResult(items)
}

func (s *Server) handleRecommendFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)

	projectID, err := projectIDArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	recs, err := s.recommender.Recommend(ctx, projectID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if recs == nil {
		recs = []*recommend.Recommendation{}
	}
	return jsonResult(map[string]any{"recommendations": recs})
}

func projectIDArg(args map[string]any) (uuid.UUID, error) {
	raw, _ := args["project_id"].(string)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("project_id parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("project_id must be a UUID: %q", raw)
	}
	return id, nil
}

func toCommitSummaries(records []*commits.CommitRecord) []commitSummary {
	out := make([]commitSummary, 0, len(records))
	for _, r := range records {
		out = append(out, commitSummary{
			Hash:    r.CommitHash,
			Author:  r.CommitAuthorName,
			Date:    r.CommitDate.Format(time.RFC3339),
			Message: r.CommitMessage,
			Summary: r.Summary,
		})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("応答のエンコードに失敗しました: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
