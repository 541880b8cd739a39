package commits

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRepo は (projectID, commitHash) の一意制約を再現するインメモリ実装
type memoryRepo struct {
	mu      sync.Mutex
	records []*CommitRecord
}

func (r *memoryRepo) ListCommitHashes(ctx context.Context, projectID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var hashes []string
	for _, rec := range r.records {
		if rec.ProjectID == projectID {
			hashes = append(hashes, rec.CommitHash)
		}
	}
	return hashes, nil
}

func (r *memoryRepo) InsertCommits(ctx context.Context, projectID uuid.UUID, records []*CommitRecord) ([]*CommitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var inserted []*CommitRecord
	for _, rec := range records {
		dup := false
		for _, existing := range r.records {
			if existing.ProjectID == projectID && existing.CommitHash == rec.CommitHash {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.records = append(r.records, rec)
		inserted = append(inserted, rec)
	}
	return inserted, nil
}

func (r *memoryRepo) ListCommits(ctx context.Context, projectID uuid.UUID) ([]*CommitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*CommitRecord, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].ProjectID == projectID {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

type stubLocator struct{ err error }

func (l stubLocator) RepositoryURL(ctx context.Context, projectID uuid.UUID) (string, error) {
	return "https://github.com/acme/app", l.err
}

type stubSource struct {
	commits []CommitInfo
	diffs   map[string]string
	diffErr map[string]error

	mu        sync.Mutex
	lastLimit int
	maxChars  int
}

func (s *stubSource) ListCommits(ctx context.Context, repositoryURL string, credential mo.Option[string], limit int) ([]CommitInfo, error) {
	s.mu.Lock()
	s.lastLimit = limit
	s.mu.Unlock()
	if len(s.commits) > limit {
		return s.commits[:limit], nil
	}
	return s.commits, nil
}

func (s *stubSource) CommitDiff(ctx context.Context, repositoryURL string, credential mo.Option[string], hash string, maxChars int) (string, error) {
	s.mu.Lock()
	s.maxChars = maxChars
	s.mu.Unlock()
	if err := s.diffErr[hash]; err != nil {
		return "", err
	}
	if d, ok := s.diffs[hash]; ok {
		return d, nil
	}
	return "diff --git a/" + hash + " b/" + hash, nil
}

type stubSummarizer struct {
	SummarizeFunc func(diff string) (string, error)
}

func (s *stubSummarizer) SummarizeCommit(ctx context.Context, diff string) (string, error) {
	if s.SummarizeFunc != nil {
		return s.SummarizeFunc(diff)
	}
	return "summary of " + diff, nil
}

func commitInfos(hashes ...string) []CommitInfo {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	infos := make([]CommitInfo, 0, len(hashes))
	for i, h := range hashes {
		infos = append(infos, CommitInfo{
			Hash:       h,
			Message:    "commit " + h,
			AuthorName: "dev",
			Date:       base.Add(-time.Duration(i) * time.Hour),
		})
	}
	return infos
}

func newTestPoller(repo Repository, source CommitSource, summarizer Summarizer, opts ...PollerOption) *Poller {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]PollerOption{WithPollerLogger(logger)}, opts...)
	return NewPoller(repo, stubLocator{}, source, summarizer, opts...)
}

func hashes(records []*CommitRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.CommitHash)
	}
	return out
}

func TestPoll_InsertsOnlyNewCommitsInFetchedOrder(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{records: []*CommitRecord{{ProjectID: projectID, CommitHash: "c3"}}}
	source := &stubSource{commits: commitInfos("c1", "c2", "c3", "c4")}

	inserted, err := newTestPoller(repo, source, &stubSummarizer{}).Poll(context.Background(), projectID)
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2", "c4"}, hashes(inserted))
	assert.Equal(t, DefaultPollLimit, source.lastLimit)
	assert.Equal(t, DefaultMaxDiffChars, source.maxChars)
	for _, rec := range inserted {
		assert.Equal(t, projectID, rec.ProjectID)
		assert.NotEmpty(t, rec.Summary)
	}
}

func TestPoll_IsIdempotent(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{}
	source := &stubSource{commits: commitInfos("c1", "c2")}
	poller := newTestPoller(repo, source, &stubSummarizer{})

	first, err := poller.Poll(context.Background(), projectID)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := poller.Poll(context.Background(), projectID)
	require.NoError(t, err)
	assert.Empty(t, second)

	stored, err := repo.ListCommitHashes(context.Background(), projectID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPoll_ConcurrentPollsNeverDuplicate(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{}
	source := &stubSource{commits: commitInfos("c1", "c2", "c3")}
	poller := newTestPoller(repo, source, &stubSummarizer{})

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := poller.Poll(context.Background(), projectID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := repo.ListCommitHashes(context.Background(), projectID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, stored)
}

func TestPoll_RechecksStoredHashesBeforeWrite(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{}
	source := &stubSource{commits: commitInfos("c1", "c2")}

	// 要約中に別のポーリングが c1 を保存したケース
	summarizer := &stubSummarizer{SummarizeFunc: func(diff string) (string, error) {
		if strings.Contains(diff, "c2") {
			repo.mu.Lock()
			if len(repo.records) == 0 {
				repo.records = append(repo.records, &CommitRecord{ProjectID: projectID, CommitHash: "c1", Summary: "other"})
			}
			repo.mu.Unlock()
		}
		return "summary", nil
	}}

	inserted, err := newTestPoller(repo, source, summarizer).Poll(context.Background(), projectID)
	require.NoError(t, err)

	assert.Equal(t, []string{"c2"}, hashes(inserted))
}

func TestPoll_PlaceholderSummaries(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{}
	source := &stubSource{
		commits: commitInfos("diff-err", "empty", "sum-err", "blank", "ok"),
		diffs:   map[string]string{"empty": "  \n"},
		diffErr: map[string]error{"diff-err": errors.New("object not found")},
	}
	summarizer := &stubSummarizer{SummarizeFunc: func(diff string) (string, error) {
		switch {
		case strings.Contains(diff, "sum-err"):
			return "", errors.New("status 503")
		case strings.Contains(diff, "blank"):
			return "   ", nil
		}
		return "Adds a feature.", nil
	}}

	inserted, err := newTestPoller(repo, source, summarizer).Poll(context.Background(), projectID)
	require.NoError(t, err)
	require.Len(t, inserted, 5)

	byHash := make(map[string]string)
	for _, rec := range inserted {
		byHash[rec.CommitHash] = rec.Summary
	}
	assert.Equal(t, "Error summarizing commit: object not found", byHash["diff-err"])
	assert.Equal(t, "No changes in this commit", byHash["empty"])
	assert.Equal(t, "Error generating summary: status 503", byHash["sum-err"])
	assert.Equal(t, "No summary generated", byHash["blank"])
	assert.Equal(t, "Adds a feature.", byHash["ok"])
}

func TestPoll_RespectsPollLimit(t *testing.T) {
	var hs []string
	for i := range 20 {
		hs = append(hs, fmt.Sprintf("c%02d", i))
	}
	repo := &memoryRepo{}
	source := &stubSource{commits: commitInfos(hs...)}

	inserted, err := newTestPoller(repo, source, &stubSummarizer{}).Poll(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, inserted, DefaultPollLimit)
}

func TestPoll_ProjectNotFound(t *testing.T) {
	notFound := errors.New("project not found")
	poller := NewPoller(&memoryRepo{}, stubLocator{err: notFound}, &stubSource{}, &stubSummarizer{},
		WithPollerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	_, err := poller.Poll(context.Background(), uuid.New())
	assert.ErrorIs(t, err, notFound)

	_, err = poller.Poll(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRefresh_ListsEvenWhenPollFails(t *testing.T) {
	projectID := uuid.New()
	repo := &memoryRepo{records: []*CommitRecord{{ProjectID: projectID, CommitHash: "old"}}}
	poller := NewPoller(repo, stubLocator{err: errors.New("offline")}, &stubSource{}, &stubSummarizer{},
		WithPollerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	records, err := poller.Refresh(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, hashes(records))
}
