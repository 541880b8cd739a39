package project

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryProjects struct {
	projects map[uuid.UUID]*Project
}

func newMemoryProjects() *memoryProjects {
	return &memoryProjects{projects: make(map[uuid.UUID]*Project)}
}

func (r *memoryProjects) CreateProject(ctx context.Context, p *Project) error {
	r.projects[p.ID] = p
	return nil
}

func (r *memoryProjects) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

func (r *memoryProjects) ListProjects(ctx context.Context) ([]*Project, error) {
	var out []*Project
	for _, p := range r.projects {
		if !p.Archived() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProjects) ArchiveProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	p.DeletedAt = mo.Some(time.Now())
	return p, nil
}

type stubValidator struct{ err error }

func (v stubValidator) ValidateRepositoryURL(repositoryURL string) error { return v.err }

type stubIndexer struct {
	calls      []string
	credential mo.Option[string]
	err        error
}

func (i *stubIndexer) IndexRepository(ctx context.Context, projectID uuid.UUID, repositoryURL string, credential mo.Option[string]) (*ingestion.IndexResult, error) {
	i.calls = append(i.calls, "index")
	i.credential = credential
	if i.err != nil {
		return nil, i.err
	}
	return &ingestion.IndexResult{ProjectID: projectID, Loaded: 3, Indexed: 3}, nil
}

type stubPoller struct {
	calls *[]string
	err   error
}

func (p stubPoller) Poll(ctx context.Context, projectID uuid.UUID) ([]*commits.CommitRecord, error) {
	*p.calls = append(*p.calls, "poll")
	if p.err != nil {
		return nil, p.err
	}
	return []*commits.CommitRecord{{CommitHash: "abc"}}, nil
}

func newTestProjectService(repo Repository, validator RepositoryValidator, indexer *stubIndexer, pollErr error) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, validator, indexer, stubPoller{calls: &indexer.calls, err: pollErr}, WithServiceLogger(logger))
}

func TestCreate_IndexesThenPolls(t *testing.T) {
	repo := newMemoryProjects()
	indexer := &stubIndexer{}
	svc := newTestProjectService(repo, stubValidator{}, indexer, nil)

	result, err := svc.Create(context.Background(), CreateParams{
		Name:          "app",
		RepositoryURL: "https://github.com/acme/app",
		Credential:    mo.Some("token"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"index", "poll"}, indexer.calls)
	assert.Equal(t, mo.Some("token"), indexer.credential)
	assert.Equal(t, 3, result.Index.Indexed)
	assert.Equal(t, 1, result.Commits)
	assert.Contains(t, repo.projects, result.Project.ID)
}

func TestCreate_IndexFailureKeepsProject(t *testing.T) {
	repo := newMemoryProjects()
	indexer := &stubIndexer{err: ingestion.ErrNoValidEmbeddings}
	svc := newTestProjectService(repo, stubValidator{}, indexer, nil)

	result, err := svc.Create(context.Background(), CreateParams{Name: "app", RepositoryURL: "https://github.com/acme/app"})
	assert.ErrorIs(t, err, ingestion.ErrNoValidEmbeddings)
	require.NotNil(t, result)
	assert.Contains(t, repo.projects, result.Project.ID)
	assert.Equal(t, []string{"index"}, indexer.calls, "インデックス化に失敗したらポーリングしない")
}

func TestCreate_PollFailureIsNotFatal(t *testing.T) {
	indexer := &stubIndexer{}
	svc := newTestProjectService(newMemoryProjects(), stubValidator{}, indexer, errors.New("rate limited"))

	result, err := svc.Create(context.Background(), CreateParams{Name: "app", RepositoryURL: "https://github.com/acme/app"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Commits)
}

func TestCreate_InvalidRepositoryFailsBeforePersisting(t *testing.T) {
	repo := newMemoryProjects()
	invalid := errors.New("repository not found")
	svc := newTestProjectService(repo, stubValidator{err: invalid}, &stubIndexer{}, nil)

	_, err := svc.Create(context.Background(), CreateParams{Name: "app", RepositoryURL: "not a url"})
	assert.ErrorIs(t, err, invalid)
	assert.Empty(t, repo.projects)

	_, err = svc.Create(context.Background(), CreateParams{Name: " ", RepositoryURL: "https://github.com/acme/app"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_DoesNotIndex(t *testing.T) {
	repo := newMemoryProjects()
	indexer := &stubIndexer{}
	svc := newTestProjectService(repo, stubValidator{}, indexer, nil)

	p, err := svc.Register(context.Background(), CreateParams{Name: " app ", RepositoryURL: "https://github.com/acme/app"})
	require.NoError(t, err)
	assert.Equal(t, "app", p.Name)
	assert.Contains(t, repo.projects, p.ID)
	assert.Empty(t, indexer.calls)

	result, err := svc.Bootstrap(context.Background(), p, mo.None[string]())
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "poll"}, indexer.calls)
	assert.Same(t, p, result.Project)
	assert.Equal(t, 1, result.Commits)
}

func TestArchive_HidesProjectFromList(t *testing.T) {
	repo := newMemoryProjects()
	svc := newTestProjectService(repo, stubValidator{}, &stubIndexer{}, nil)

	result, err := svc.Create(context.Background(), CreateParams{Name: "app", RepositoryURL: "https://github.com/acme/app"})
	require.NoError(t, err)

	archived, err := svc.Archive(context.Background(), result.Project.ID)
	require.NoError(t, err)
	assert.True(t, archived.Archived())

	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Archive(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProjectNotFound)
}
