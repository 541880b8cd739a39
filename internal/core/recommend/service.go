package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultLimit は返す推薦の最大件数
	DefaultLimit = 20

	easyMaxBytes   = 5000  // おおよそ 150 行未満
	mediumMaxBytes = 20000 // おおよそ 500 行未満
)

// ErrInvalidInput は入力が不正な場合のエラー
var ErrInvalidInput = errors.New("invalid recommend input")

var allowedExtensions = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".py": {}, ".go": {}, ".rb": {}, ".rs": {},
	".java": {}, ".kt": {},
	".c": {}, ".cpp": {}, ".h": {},
	".css": {}, ".scss": {}, ".html": {},
}

var ignoredDirs = map[string]struct{}{
	".github": {}, "docs": {}, "node_modules": {}, "dist": {}, "build": {}, "coverage": {},
	"test": {}, "tests": {}, "__tests__": {}, "migrations": {},
}

// Repository はインデックス済みファイルの一覧を返す
type Repository interface {
	ListIndexedFiles(ctx context.Context, projectID uuid.UUID) ([]*IndexedFile, error)
}

// Service はインデックス済みファイルから読み始めるファイルを推薦する
type Service struct {
	repo   Repository
	limit  int
	logger *slog.Logger
}

type ServiceOption func(*Service)

// WithLimit は推薦件数の上限を設定する
func WithLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		limit:  DefaultLimit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Recommend はソースファイルを難易度（サイズ）の低い順に、同じ難易度内では小さい順に返す
func (s *Service) Recommend(ctx context.Context, projectID uuid.UUID) ([]*Recommendation, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}

	files, err := s.repo.ListIndexedFiles(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}

	recs := make([]*Recommendation, 0, len(files))
	for _, f := range files {
		if !isSourceFile(f.Path) {
			continue
		}
		recs = append(recs, &Recommendation{
			Path:        f.Path,
			Size:        f.Size,
			Difficulty:  classifyBySize(f.Size),
			Description: describe(f.Path),
			Summary:     f.Summary,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Difficulty.rank() != b.Difficulty.rank() {
			return a.Difficulty.rank() < b.Difficulty.rank()
		}
		if a.Size != b.Size {
			return a.Size < b.Size
		}
		return a.Path < b.Path
	})

	if len(recs) > s.limit {
		recs = recs[:s.limit]
	}

	s.logger.Info("推薦ファイルを選びました", "projectID", projectID, "candidates", len(files), "recommended", len(recs))
	return recs, nil
}

func classifyBySize(size int64) Difficulty {
	switch {
	case size < easyMaxBytes:
		return DifficultyEasy
	case size < mediumMaxBytes:
		return DifficultyMedium
	default:
		return DifficultyAdvanced
	}
}

// isSourceFile は拡張子のホワイトリストと除外ディレクトリで判定する。minified・設定・型定義ファイルは除く。
func isSourceFile(p string) bool {
	for _, seg := range strings.Split(path.Dir(p), "/") {
		if _, ok := ignoredDirs[seg]; ok {
			return false
		}
	}
	if _, ok := allowedExtensions[path.Ext(p)]; !ok {
		return false
	}
	base := path.Base(p)
	return !strings.Contains(base, ".min.") &&
		!strings.Contains(base, ".config.") &&
		!strings.HasSuffix(base, ".d.ts")
}

func describe(p string) string {
	lower := strings.ToLower(p)
	switch {
	case strings.Contains(lower, "component"):
		return "UI Component"
	case strings.Contains(lower, "hook"):
		return "React Hook"
	case strings.Contains(lower, "utils"), strings.Contains(lower, "lib"):
		return "Utility Function"
	case strings.Contains(lower, "backend"), strings.Contains(lower, "api"):
		return "Backend Logic"
	case strings.Contains(lower, "test"):
		return "Test File"
	case strings.HasSuffix(lower, ".css"), strings.HasSuffix(lower, ".scss"):
		return "Styles"
	default:
		return "Source file"
	}
}
