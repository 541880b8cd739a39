package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{ calls int }

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return []float32{1, 2, 3}, nil
}

// stubSearchRepo は固定の類似度を持つ行に対して閾値付き検索を再現する
type stubSearchRepo struct {
	rows       []*Match
	thresholds []mo.Option[float64]
	err        error
}

func (r *stubSearchRepo) SearchSimilar(ctx context.Context, projectID uuid.UUID, queryVector []float32, minSimilarity mo.Option[float64], limit int) ([]*Match, error) {
	r.thresholds = append(r.thresholds, minSimilarity)
	if r.err != nil {
		return nil, r.err
	}

	var hits []*Match
	for _, row := range r.rows {
		if th, ok := minSimilarity.Get(); ok && row.Similarity <= th {
			continue
		}
		hits = append(hits, row)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func newTestEngine(repo Repository, embedder Embedder) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(repo, embedder, WithEngineLogger(logger))
}

func match(name string, sim float64) *Match {
	return &Match{ID: uuid.New(), FileName: name, Summary: name + " summary", Similarity: sim}
}

func fileNames(ms []*Match) []string {
	names := make([]string, 0, len(ms))
	for _, m := range ms {
		names = append(names, m.FileName)
	}
	return names
}

func TestEngine_RetrieveFillsFromFinalTier(t *testing.T) {
	repo := &stubSearchRepo{rows: []*Match{
		match("a.go", 0.6), match("b.go", 0.45), match("c.go", 0.25), match("d.go", 0.1),
	}}
	embedder := &stubEmbedder{}

	results, err := newTestEngine(repo, embedder).Retrieve(context.Background(), uuid.New(), "how does auth work?")
	require.NoError(t, err)

	// 0.5 で1件、0.3 で2件。下限なしの最終段階は limit まで新しいファイルを追加する
	assert.Equal(t, []string{"a.go", "b.go", "c.go", "d.go"}, fileNames(results))
	assert.Len(t, repo.thresholds, 3)
	assert.Equal(t, 1, embedder.calls, "質問のEmbeddingは一度だけ生成する")
}

func TestEngine_RetrieveStopsOnceMinResultsReached(t *testing.T) {
	repo := &stubSearchRepo{rows: []*Match{
		match("a.go", 0.6), match("b.go", 0.45), match("c.go", 0.35), match("d.go", 0.1),
	}}

	results, err := newTestEngine(repo, &stubEmbedder{}).Retrieve(context.Background(), uuid.New(), "q")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, fileNames(results))
	require.Len(t, repo.thresholds, 2, "第3段階は評価しない")
	assert.Equal(t, mo.Some(0.5), repo.thresholds[0])
	assert.Equal(t, mo.Some(0.3), repo.thresholds[1])
}

func TestEngine_RetrieveFirstTierEnough(t *testing.T) {
	repo := &stubSearchRepo{rows: []*Match{
		match("a.go", 0.9), match("b.go", 0.8), match("c.go", 0.7), match("d.go", 0.6),
		match("e.go", 0.55), match("f.go", 0.51),
	}}

	results, err := newTestEngine(repo, &stubEmbedder{}).Retrieve(context.Background(), uuid.New(), "q")
	require.NoError(t, err)

	assert.Len(t, results, 5, "limit で打ち切る")
	assert.Len(t, repo.thresholds, 1)
}

func TestEngine_RetrieveDeduplicatesByFileName(t *testing.T) {
	first := match("a.go", 0.9)
	repo := &stubSearchRepo{rows: []*Match{
		first, match("a.go", 0.4), match("b.go", 0.2),
	}}

	results, err := newTestEngine(repo, &stubEmbedder{}).Retrieve(context.Background(), uuid.New(), "q")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.go", "b.go"}, fileNames(results))
	assert.Same(t, first, results[0], "最初に得た結果を優先する")
}

func TestEngine_RetrieveNoRelevantContext(t *testing.T) {
	repo := &stubSearchRepo{}

	_, err := newTestEngine(repo, &stubEmbedder{}).Retrieve(context.Background(), uuid.New(), "q")
	assert.ErrorIs(t, err, ErrNoRelevantContext)
	assert.Len(t, repo.thresholds, 3)
}

func TestEngine_RetrieveValidatesInput(t *testing.T) {
	engine := newTestEngine(&stubSearchRepo{}, &stubEmbedder{})

	_, err := engine.Retrieve(context.Background(), uuid.Nil, "q")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = engine.Retrieve(context.Background(), uuid.New(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_RetrievePropagatesRepositoryError(t *testing.T) {
	boom := errors.New("db down")
	_, err := newTestEngine(&stubSearchRepo{err: boom}, &stubEmbedder{}).Retrieve(context.Background(), uuid.New(), "q")
	assert.ErrorIs(t, err, boom)
}

func TestTiersFromThresholds(t *testing.T) {
	tiers := TiersFromThresholds([]float64{0.7, 0.4})
	assert.Equal(t, []Tier{{MinSimilarity: 0.7}, {MinSimilarity: 0.4}, {Final: true}}, tiers)
}
