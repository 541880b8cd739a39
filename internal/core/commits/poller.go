package commits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPollLimit は1回のポーリングで取得するコミット数
	DefaultPollLimit = 15
	// DefaultMaxDiffChars は要約に渡す差分の最大文字数
	DefaultMaxDiffChars = 1000
	// DefaultWorkerCount は同時に処理するコミット数
	DefaultWorkerCount = 8

	noChangesSummary = "No changes in this commit"
	noSummary        = "No summary generated"
)

// ErrInvalidInput は入力が不正な場合のエラー
var ErrInvalidInput = errors.New("invalid commit poll input")

// Poller は新しいコミットを取得・要約して保存する
type Poller struct {
	repo         Repository
	projects     ProjectLocator
	source       CommitSource
	summarizer   Summarizer
	pollLimit    int
	maxDiffChars int
	workers      int
	logger       *slog.Logger
}

// PollerOption は Poller のオプション設定
type PollerOption func(*Poller)

// WithPollLimit は1回に取得するコミット数を設定する
func WithPollLimit(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.pollLimit = n
		}
	}
}

// WithMaxDiffChars は差分の最大文字数を設定する
func WithMaxDiffChars(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxDiffChars = n
		}
	}
}

// WithPollerLogger はロガーを設定する
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// NewPoller は新しい Poller を作成する
func NewPoller(repo Repository, projects ProjectLocator, source CommitSource, summarizer Summarizer, opts ...PollerOption) *Poller {
	p := &Poller{
		repo:         repo,
		projects:     projects,
		source:       source,
		summarizer:   summarizer,
		pollLimit:    DefaultPollLimit,
		maxDiffChars: DefaultMaxDiffChars,
		workers:      DefaultWorkerCount,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Poll は未処理のコミットを要約して保存し、新たに保存したコミットを取得順に返す。
// 同じコミットを二度保存することはない。
func (p *Poller) Poll(ctx context.Context, projectID uuid.UUID) ([]*CommitRecord, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}

	repositoryURL, err := p.projects.RepositoryURL(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}

	infos, err := p.source.ListCommits(ctx, repositoryURL, mo.None[string](), p.pollLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}

	pending, err := p.unprocessed(ctx, projectID, infos)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		p.logger.Debug("新しいコミットはありません", "projectID", projectID)
		return []*CommitRecord{}, nil
	}

	p.logger.Info("コミットの要約を開始", "projectID", projectID, "count", len(pending))

	records := make([]*CommitRecord, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, info := range pending {
		g.Go(func() error {
			summary := p.summarize(gctx, repositoryURL, info.Hash)
			records[i] = &CommitRecord{
				ID:                 uuid.New(),
				ProjectID:          projectID,
				CommitHash:         info.Hash,
				CommitMessage:      info.Message,
				CommitAuthorName:   info.AuthorName,
				CommitAuthorAvatar: info.AuthorAvatar,
				CommitDate:         info.Date,
				Summary:            summary,
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 要約中に他のポーリングが保存したコミットを除外する
	stillPending, err := p.unprocessedRecords(ctx, projectID, records)
	if err != nil {
		return nil, err
	}

	inserted, err := p.repo.InsertCommits(ctx, projectID, stillPending)
	if err != nil {
		return nil, fmt.Errorf("failed to save commits: %w", err)
	}

	p.logger.Info("コミットを保存しました",
		"projectID", projectID,
		"fetched", len(infos),
		"summarized", len(records),
		"inserted", len(inserted),
	)

	return inserted, nil
}

// List は保存済みのコミットを新しい順に返す
func (p *Poller) List(ctx context.Context, projectID uuid.UUID) ([]*CommitRecord, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	records, err := p.repo.ListCommits(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}
	return records, nil
}

// Refresh はポーリングを試みてから保存済みのコミットを返す。ポーリングの失敗はログのみ。
func (p *Poller) Refresh(ctx context.Context, projectID uuid.UUID) ([]*CommitRecord, error) {
	if _, err := p.Poll(ctx, projectID); err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		p.logger.Warn("コミットのポーリングに失敗", "projectID", projectID, "error", err)
	}
	return p.List(ctx, projectID)
}

// summarize は差分を取得して要約する。失敗時は理由を表す文字列を要約として返す。
func (p *Poller) summarize(ctx context.Context, repositoryURL, hash string) string {
	start := time.Now()

	diff, err := p.source.CommitDiff(ctx, repositoryURL, mo.None[string](), hash, p.maxDiffChars)
	if err != nil {
		p.logger.Warn("差分の取得に失敗", "commit", hash, "error", err)
		return fmt.Sprintf("Error summarizing commit: %v", err)
	}
	if strings.TrimSpace(diff) == "" {
		return noChangesSummary
	}

	summary, err := p.summarizer.SummarizeCommit(ctx, diff)
	if err != nil {
		p.logger.Warn("コミット要約の生成に失敗", "commit", hash, "error", err)
		return fmt.Sprintf("Error generating summary: %v", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return noSummary
	}

	p.logger.Debug("コミットを要約しました", "commit", hash, "duration", time.Since(start))
	return summary
}

func (p *Poller) storedHashes(ctx context.Context, projectID uuid.UUID) (map[string]struct{}, error) {
	hashes, err := p.repo.ListCommitHashes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored commits: %w", err)
	}
	set := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		set[h] = struct{}{}
	}
	return set, nil
}

func (p *Poller) unprocessed(ctx context.Context, projectID uuid.UUID, infos []CommitInfo) ([]CommitInfo, error) {
	stored, err := p.storedHashes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	pending := make([]CommitInfo, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if _, ok := stored[info.Hash]; ok {
			continue
		}
		if _, ok := seen[info.Hash]; ok {
			continue
		}
		seen[info.Hash] = struct{}{}
		pending = append(pending, info)
	}
	return pending, nil
}

func (p *Poller) unprocessedRecords(ctx context.Context, projectID uuid.UUID, records []*CommitRecord) ([]*CommitRecord, error) {
	stored, err := p.storedHashes(ctx, projectID)
	if err != nil {
		return nil, err
	}
	pending := make([]*CommitRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := stored[rec.CommitHash]; ok {
			continue
		}
		pending = append(pending, rec)
	}
	return pending, nil
}
