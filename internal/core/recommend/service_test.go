package recommend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	files []*IndexedFile
	err   error
}

func (r *stubRepo) ListIndexedFiles(ctx context.Context, projectID uuid.UUID) ([]*IndexedFile, error) {
	return r.files, r.err
}

func newTestService(repo Repository, opts ...ServiceOption) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, append([]ServiceOption{WithServiceLogger(logger)}, opts...)...)
}

func paths(recs []*Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Path)
	}
	return out
}

func TestRecommend_OrdersByDifficultyThenSize(t *testing.T) {
	repo := &stubRepo{files: []*IndexedFile{
		{Path: "internal/server/server.go", Size: 25000},
		{Path: "internal/api/handler.go", Size: 8000},
		{Path: "pkg/utils/strings.go", Size: 1200, Summary: "String helpers."},
		{Path: "cmd/main.go", Size: 900},
		{Path: "web/components/Button.tsx", Size: 4999},
	}}

	recs, err := newTestService(repo).Recommend(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cmd/main.go",
		"pkg/utils/strings.go",
		"web/components/Button.tsx",
		"internal/api/handler.go",
		"internal/server/server.go",
	}, paths(recs))

	assert.Equal(t, DifficultyEasy, recs[2].Difficulty)
	assert.Equal(t, DifficultyMedium, recs[3].Difficulty)
	assert.Equal(t, DifficultyAdvanced, recs[4].Difficulty)
	assert.Equal(t, "Utility Function", recs[1].Description)
	assert.Equal(t, "String helpers.", recs[1].Summary)
	assert.Equal(t, "UI Component", recs[2].Description)
	assert.Equal(t, "Backend Logic", recs[3].Description)
	assert.Equal(t, "Source file", recs[0].Description)
}

func TestRecommend_FiltersNonSourceFiles(t *testing.T) {
	repo := &stubRepo{files: []*IndexedFile{
		{Path: "main.go", Size: 100},
		{Path: "README.md", Size: 100},
		{Path: "docs/example.go", Size: 100},
		{Path: "tests/helper.py", Size: 100},
		{Path: "db/migrations/001.go", Size: 100},
		{Path: "web/app.min.js", Size: 100},
		{Path: "web/vite.config.ts", Size: 100},
		{Path: "web/types/index.d.ts", Size: 100},
		{Path: "web/styles/site.scss", Size: 100},
	}}

	recs, err := newTestService(repo).Recommend(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"main.go", "web/styles/site.scss"}, paths(recs))
}

func TestRecommend_Limit(t *testing.T) {
	var files []*IndexedFile
	for i := 0; i < 30; i++ {
		files = append(files, &IndexedFile{Path: "pkg/f" + strings.Repeat("x", i) + ".go", Size: int64(100 + i)})
	}

	recs, err := newTestService(&stubRepo{files: files}).Recommend(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Len(t, recs, DefaultLimit)

	recs, err = newTestService(&stubRepo{files: files}, WithLimit(3)).Recommend(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/f.go", "pkg/fx.go", "pkg/fxx.go"}, paths(recs))
}

func TestRecommend_Errors(t *testing.T) {
	_, err := newTestService(&stubRepo{}).Recommend(context.Background(), uuid.Nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	dbErr := errors.New("connection refused")
	_, err = newTestService(&stubRepo{err: dbErr}).Recommend(context.Background(), uuid.New())
	assert.ErrorIs(t, err, dbErr)

	recs, err := newTestService(&stubRepo{}).Recommend(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, recs)
}
