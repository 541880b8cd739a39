package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
)

const codeSummarySystemPrompt = "You are an intelligent senior software engineer who specializes in onboarding junior software engineers onto projects"

// Summarizer はファイルとコミット差分の要約を ChatClient で生成する
type Summarizer struct {
	chat *ChatClient
}

// NewSummarizer は新しい Summarizer を作成する
func NewSummarizer(chat *ChatClient) *Summarizer {
	return &Summarizer{chat: chat}
}

// SummarizeCode はソースコードの目的を約100語で要約する
func (s *Summarizer) SummarizeCode(ctx context.Context, fileName, source string) (string, error) {
	prompt := fmt.Sprintf(`Onboarding a junior engineer for %s:
---
%s
---
Provide a 100-word summary of this code's purpose.`, fileName, source)

	summary, err := s.chat.Complete(ctx, CompletionRequest{
		System:      codeSummarySystemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   150,
		TopP:        0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize %s: %w", fileName, err)
	}
	return strings.TrimSpace(summary), nil
}

// SummarizeCommit はコミット差分を簡潔に要約する
func (s *Summarizer) SummarizeCommit(ctx context.Context, diff string) (string, error) {
	prompt := fmt.Sprintf(`Please provide a concise summary of the following git diff:
%s
Focus on:
1. What changed
2. Key files modified
3. Most important updates
Please keep it brief and technical.`, diff)

	summary, err := s.chat.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   200,
		TopP:        0.8,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

var (
	_ ingestion.Summarizer = (*Summarizer)(nil)
	_ commits.Summarizer   = (*Summarizer)(nil)
)
