package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/samber/mo"
)

var (
	// ErrProjectNotFound はプロジェクトが存在しない場合のエラー
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidInput は入力が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid project input")
)

// RepositoryValidator はリポジトリ参照（URL）を検証する
type RepositoryValidator interface {
	ValidateRepositoryURL(repositoryURL string) error
}

// Indexer はリポジトリをインデックス化する
type Indexer interface {
	IndexRepository(ctx context.Context, projectID uuid.UUID, repositoryURL string, credential mo.Option[string]) (*ingestion.IndexResult, error)
}

// CommitPoller はコミットを取り込む
type CommitPoller interface {
	Poll(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error)
}

// CreateParams はプロジェクト作成のパラメータ
type CreateParams struct {
	Name          string
	RepositoryURL string
	Credential    mo.Option[string]
}

// CreateResult はプロジェクト作成の結果
type CreateResult struct {
	Project *Project               `json:"project"`
	Index   *ingestion.IndexResult `json:"index,omitempty"`
	Commits int                    `json:"commits"`
}

// Service はプロジェクトのユースケースを提供する
type Service struct {
	repo      Repository
	validator RepositoryValidator
	indexer   Indexer
	poller    CommitPoller
	logger    *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithServiceLogger はロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, validator RepositoryValidator, indexer Indexer, poller CommitPoller, opts ...ServiceOption) *Service {
	s := &Service{
		repo:      repo,
		validator: validator,
		indexer:   indexer,
		poller:    poller,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create はプロジェクトを作成し、インデックス化とコミット取り込みを行う。
// インデックス化に失敗した場合もプロジェクトは残り、結果とともにエラーを返す。
// コミット取り込みの失敗はログのみ（次回のポーリングで再試行される）。
func (s *Service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	p, err := s.Register(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.Bootstrap(ctx, p, params.Credential)
}

// Register は入力とリポジトリ参照を検証してプロジェクトを保存する（インデックス化はしない）
func (s *Service) Register(ctx context.Context, params CreateParams) (*Project, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	repositoryURL := strings.TrimSpace(params.RepositoryURL)
	if repositoryURL == "" {
		return nil, fmt.Errorf("%w: repository URL is required", ErrInvalidInput)
	}
	if err := s.validator.ValidateRepositoryURL(repositoryURL); err != nil {
		return nil, err
	}

	p := &Project{
		ID:            uuid.New(),
		Name:          name,
		RepositoryURL: repositoryURL,
		CreatedAt:     time.Now(),
		DeletedAt:     mo.None[time.Time](),
	}
	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("プロジェクトを作成しました", "projectID", p.ID, "name", p.Name, "repository", p.RepositoryURL)
	return p, nil
}

// Bootstrap は作成済みプロジェクトの初回インデックス化とコミット取り込みを行う
func (s *Service) Bootstrap(ctx context.Context, p *Project, credential mo.Option[string]) (*CreateResult, error) {
	result := &CreateResult{Project: p}

	indexResult, err := s.indexer.IndexRepository(ctx, p.ID, p.RepositoryURL, credential)
	if err != nil {
		return result, fmt.Errorf("failed to index repository: %w", err)
	}
	result.Index = indexResult

	inserted, err := s.poller.Poll(ctx, p.ID)
	if err != nil {
		s.logger.Warn("初回のコミット取り込みに失敗", "projectID", p.ID, "error", err)
	} else {
		result.Commits = len(inserted)
	}

	return result, nil
}

// Get はプロジェクトを返す
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Project, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	return s.repo.GetProject(ctx, id)
}

// List はアーカイブされていないプロジェクトを返す
func (s *Service) List(ctx context.Context) ([]*Project, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Archive はプロジェクトをアーカイブする（データは削除しない）
func (s *Service) Archive(ctx context.Context, id uuid.UUID) (*Project, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	p, err := s.repo.ArchiveProject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("プロジェクトをアーカイブしました", "projectID", id)
	return p, nil
}
