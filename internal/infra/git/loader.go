package git

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/samber/mo"

	"github.com/jinford/repo-qa/internal/core/commits"
	"github.com/jinford/repo-qa/internal/core/ingestion"
	"github.com/jinford/repo-qa/internal/core/project"
	"github.com/jinford/repo-qa/internal/infra/git/filter"
)

const (
	// DefaultMaxFileBytes はインデックス対象とするファイルサイズの上限
	DefaultMaxFileBytes int64 = 512 * 1024

	// コミット一覧で走査する履歴の最小件数
	minCommitScanWindow = 100
)

var (
	_ ingestion.DocumentLoader    = (*Loader)(nil)
	_ commits.CommitSource        = (*Loader)(nil)
	_ project.RepositoryValidator = (*Loader)(nil)
)

// Loader はリモートリポジトリをローカルにミラーし、ファイルとコミットを読み出す
type Loader struct {
	cloneDir     string
	defaultToken string
	sshKeyPath   string
	sshPassword  string
	maxFileBytes int64
	allowLocal   bool
	logger       *slog.Logger

	// クローン先ディレクトリごとのロック
	locks sync.Map
}

// LoaderOption は Loader のオプション
type LoaderOption func(*Loader)

// WithDefaultToken は認証情報が指定されなかった場合に使うトークンを設定する
func WithDefaultToken(token string) LoaderOption {
	return func(l *Loader) {
		l.defaultToken = token
	}
}

// WithSSHKey は SSH 接続に使う秘密鍵を設定する
func WithSSHKey(keyPath, password string) LoaderOption {
	return func(l *Loader) {
		l.sshKeyPath = keyPath
		l.sshPassword = password
	}
}

// WithMaxFileBytes はファイルサイズ上限を設定する
func WithMaxFileBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxFileBytes = n
		}
	}
}

// WithAllowLocal はローカルパス（file://）のリポジトリ参照を許可する
func WithAllowLocal(allow bool) LoaderOption {
	return func(l *Loader) {
		l.allowLocal = allow
	}
}

// WithLoaderLogger はロガーを設定する
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(cloneDir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		cloneDir:     cloneDir,
		maxFileBytes: DefaultMaxFileBytes,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ValidateRepositoryURL はリポジトリ参照を解析できるかだけを検証する（ネットワークアクセスなし）
func (l *Loader) ValidateRepositoryURL(repositoryURL string) error {
	_, err := l.parseRef(repositoryURL)
	return err
}

// LoadDocuments はデフォルトブランチのファイルを除外ルール適用後に返す
func (l *Loader) LoadDocuments(ctx context.Context, repositoryURL string, credential mo.Option[string]) ([]*ingestion.SourceDocument, error) {
	ref, err := l.parseRef(repositoryURL)
	if err != nil {
		return nil, err
	}

	var docs []*ingestion.SourceDocument
	err = l.withRepository(ctx, ref, credential, true, func(repo *git.Repository, head plumbing.Hash) error {
		commit, err := repo.CommitObject(head)
		if err != nil {
			return fmt.Errorf("failed to get commit object: %w", err)
		}
		tree, err := commit.Tree()
		if err != nil {
			return fmt.Errorf("failed to get tree: %w", err)
		}
		docs, err = l.collectDocuments(ctx, tree)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("ドキュメントを読み込みました",
		"repository", ref.FullName(),
		"documents", len(docs),
	)

	return docs, nil
}

// ListCommits はデフォルトブランチのコミットを author 日時の新しい順に最大 limit 件返す
func (l *Loader) ListCommits(ctx context.Context, repositoryURL string, credential mo.Option[string], limit int) ([]commits.CommitInfo, error) {
	ref, err := l.parseRef(repositoryURL)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	var result []commits.CommitInfo
	err = l.withRepository(ctx, ref, credential, true, func(repo *git.Repository, head plumbing.Hash) error {
		result, err = recentCommits(repo, head, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// CommitDiff は親コミット（ルートコミットは空ツリー）との unified diff を返す。
// maxChars を超える場合は先頭 maxChars 文字に切り詰めてマーカーで囲む。
func (l *Loader) CommitDiff(ctx context.Context, repositoryURL string, credential mo.Option[string], hash string, maxChars int) (string, error) {
	ref, err := l.parseRef(repositoryURL)
	if err != nil {
		return "", err
	}

	commitHash := plumbing.NewHash(hash)
	if commitHash.IsZero() {
		return "", fmt.Errorf("invalid commit hash: %q", hash)
	}

	var diff string
	err = l.withRepository(ctx, ref, credential, false, func(repo *git.Repository, _ plumbing.Hash) error {
		commit, err := repo.CommitObject(commitHash)
		if err != nil {
			return fmt.Errorf("failed to get commit %s: %w", hash, err)
		}
		diff, err = commitPatch(ctx, commit, maxChars)
		return err
	})
	if err != nil {
		return "", err
	}

	return diff, nil
}

// parseRef はリポジトリ参照を解析し、許可されたスキームかを検証する
func (l *Loader) parseRef(repositoryURL string) (RepositoryRef, error) {
	ref, err := ParseRepositoryRef(repositoryURL)
	if err != nil {
		return RepositoryRef{}, err
	}
	switch {
	case ref.IsHTTP(), ref.IsSSH():
		return ref, nil
	case ref.IsLocal() && l.allowLocal:
		return ref, nil
	default:
		return RepositoryRef{}, &RepositoryNotFoundError{Ref: repositoryURL, Reason: fmt.Sprintf("unsupported scheme %q", ref.Scheme)}
	}
}

// withRepository はクローン先ディレクトリのロックを取ってリポジトリを開き、fn を実行する。
// refresh が false の場合、既存のクローンがあればフェッチしない。
func (l *Loader) withRepository(ctx context.Context, ref RepositoryRef, credential mo.Option[string], refresh bool, fn func(repo *git.Repository, head plumbing.Hash) error) error {
	repoPath, err := ref.clonePath(l.cloneDir)
	if err != nil {
		return err
	}

	mu := l.lockFor(repoPath)
	mu.Lock()
	defer mu.Unlock()

	auth, err := l.authFor(ref, credential)
	if err != nil {
		return err
	}

	var repo *git.Repository
	if !refresh {
		repo, err = git.PlainOpen(repoPath)
		if err != nil {
			repo = nil
		}
	}
	if repo == nil {
		repo, err = l.sync(ctx, ref, repoPath, auth)
		if err != nil {
			return err
		}
	}

	branch, err := l.defaultBranch(ctx, repo, auth, refresh)
	if err != nil {
		return err
	}

	head, err := resolveBranch(repo, branch)
	if err != nil {
		return err
	}

	l.logger.Debug("リポジトリを開きました",
		"repository", ref.FullName(),
		"branch", branch,
		"head", head.String(),
	)

	return fn(repo, head)
}

func (l *Loader) lockFor(path string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// sync は未クローンならベアクローンし、クローン済みならフェッチする
func (l *Loader) sync(ctx context.Context, ref RepositoryRef, repoPath string, auth transport.AuthMethod) (*git.Repository, error) {
	if _, err := os.Stat(repoPath); errors.Is(err, os.ErrNotExist) {
		l.logger.Info("リポジトリをクローンしています", "repository", ref.FullName(), "path", repoPath)

		repo, err := git.PlainCloneContext(ctx, repoPath, true, &git.CloneOptions{
			URL:  ref.URL,
			Auth: auth,
		})
		if err != nil {
			// 中途半端なクローンを残さない
			_ = os.RemoveAll(repoPath)
			return nil, classifyRemoteError(ref.URL, fmt.Errorf("failed to clone repository: %w", err))
		}
		return repo, nil
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Auth:       auth,
		Force:      true,
		Prune:      true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil, classifyRemoteError(ref.URL, fmt.Errorf("failed to fetch: %w", err))
	}

	return repo, nil
}

// defaultBranch はリモートが広告する HEAD からデフォルトブランチ名を求める。
// リモートに問い合わせられない場合はクローンの HEAD を使う。
func (l *Loader) defaultBranch(ctx context.Context, repo *git.Repository, auth transport.AuthMethod, queryRemote bool) (string, error) {
	if queryRemote {
		remote, err := repo.Remote(git.DefaultRemoteName)
		if err == nil {
			refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
			if err == nil {
				if branch, ok := branchFromAdvertisedHead(refs); ok {
					return branch, nil
				}
			} else {
				l.logger.Warn("リモートの HEAD を取得できませんでした", "error", err)
			}
		}
	}

	head, err := repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference && head.Target().IsBranch() {
		return head.Target().Short(), nil
	}
	return "", fmt.Errorf("could not determine default branch")
}

// branchFromAdvertisedHead は ls-remote の結果からデフォルトブランチを求める
func branchFromAdvertisedHead(refs []*plumbing.Reference) (string, bool) {
	var headHash plumbing.Hash
	for _, r := range refs {
		if r.Name() != plumbing.HEAD {
			continue
		}
		if r.Type() == plumbing.SymbolicReference && r.Target().IsBranch() {
			return r.Target().Short(), true
		}
		headHash = r.Hash()
	}
	if headHash.IsZero() {
		return "", false
	}

	// symref が広告されない場合は HEAD と同じコミットを指すブランチを探す
	var candidates []string
	for _, r := range refs {
		if r.Name().IsBranch() && r.Hash() == headHash {
			candidates = append(candidates, r.Name().Short())
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

// resolveBranch はブランチのコミットハッシュを返す
func resolveBranch(repo *git.Repository, branch string) (plumbing.Hash, error) {
	for _, name := range []plumbing.ReferenceName{
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch),
		plumbing.NewBranchReferenceName(branch),
	} {
		if r, err := repo.Reference(name, true); err == nil {
			return r.Hash(), nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("failed to resolve branch: %s", branch)
}

// authFor は認証情報からトランスポート認証を組み立てる
func (l *Loader) authFor(ref RepositoryRef, credential mo.Option[string]) (transport.AuthMethod, error) {
	switch {
	case ref.IsHTTP():
		token := credential.OrElse(l.defaultToken)
		if token == "" {
			return nil, nil
		}
		return &http.BasicAuth{Username: "x-access-token", Password: token}, nil
	case ref.IsSSH():
		if l.sshKeyPath == "" {
			return nil, nil
		}
		if _, err := os.Stat(l.sshKeyPath); errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		auth, err := ssh.NewPublicKeysFromFile("git", l.sshKeyPath, l.sshPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return auth, nil
	default:
		return nil, nil
	}
}

// collectDocuments はツリーを走査し、インデックス対象のファイルを返す
func (l *Loader) collectDocuments(ctx context.Context, tree *object.Tree) ([]*ingestion.SourceDocument, error) {
	ignore := filter.NewIgnoreFilter(readIgnoreFiles(tree)...)

	var docs []*ingestion.SourceDocument
	skipped := 0
	err := tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !f.Mode.IsFile() || f.Mode == filemode.Symlink {
			skipped++
			return nil
		}
		if ignore.ShouldIgnore(f.Name) || enry.IsVendor(f.Name) {
			skipped++
			return nil
		}
		if f.Size > l.maxFileBytes {
			l.logger.Debug("サイズ上限を超えるファイルをスキップしました", "path", f.Name, "size", f.Size)
			skipped++
			return nil
		}

		content, err := readBlob(f)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", f.Name, err)
		}
		if enry.IsBinary(content) || enry.IsGenerated(f.Name, content) {
			skipped++
			return nil
		}

		docs = append(docs, &ingestion.SourceDocument{
			Path:        f.Name,
			Content:     string(content),
			Size:        f.Size,
			ContentHash: f.Hash.String(),
			Language:    enry.GetLanguage(path.Base(f.Name), content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}

	l.logger.Debug("ファイルを走査しました", "documents", len(docs), "skipped", skipped)

	return docs, nil
}

// readIgnoreFiles はツリー直下の除外設定ファイルを読み込む
func readIgnoreFiles(tree *object.Tree) []string {
	var contents []string
	for _, name := range filter.IgnoreFileNames {
		f, err := tree.File(name)
		if err != nil {
			continue
		}
		content, err := f.Contents()
		if err != nil {
			continue
		}
		contents = append(contents, content)
	}
	return contents
}

func readBlob(f *object.File) ([]byte, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// recentCommits は head から履歴を走査し、author 日時の新しい順に limit 件を返す
func recentCommits(repo *git.Repository, head plumbing.Hash, limit int) ([]commits.CommitInfo, error) {
	iter, err := repo.Log(&git.LogOptions{From: head, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}
	defer iter.Close()

	window := max(limit*4, minCommitScanWindow)
	var scanned []*object.Commit
	for len(scanned) < window {
		c, err := iter.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate commits: %w", err)
		}
		scanned = append(scanned, c)
	}

	sort.SliceStable(scanned, func(i, j int) bool {
		return scanned[i].Author.When.After(scanned[j].Author.When)
	})
	if len(scanned) > limit {
		scanned = scanned[:limit]
	}

	result := make([]commits.CommitInfo, 0, len(scanned))
	for _, c := range scanned {
		result = append(result, commits.CommitInfo{
			Hash:         c.Hash.String(),
			Message:      strings.TrimSpace(c.Message),
			AuthorName:   c.Author.Name,
			AuthorAvatar: AvatarURL(c.Author.Email),
			Date:         c.Author.When.In(time.UTC),
		})
	}
	return result, nil
}
