package git

import (
	"path/filepath"
	"strings"

	giturls "github.com/whilp/git-urls"
)

// RepositoryRef は解析済みのリポジトリ参照
type RepositoryRef struct {
	URL    string // go-git に渡すURL（入力のまま）
	Scheme string
	Host   string
	Owner  string
	Name   string
}

// FullName は owner/name を返す
func (r RepositoryRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// IsSSH は SSH 経由の参照かを返す
func (r RepositoryRef) IsSSH() bool {
	return r.Scheme == "ssh" || r.Scheme == "git+ssh"
}

// IsLocal はローカルパス（file://）の参照かを返す
func (r RepositoryRef) IsLocal() bool {
	return r.Scheme == "" || r.Scheme == "file"
}

// IsHTTP は HTTP(S) 経由の参照かを返す
func (r RepositoryRef) IsHTTP() bool {
	return r.Scheme == "http" || r.Scheme == "https"
}

// ParseRepositoryRef はリポジトリURLから owner と name を取り出す。
// 例: https://github.com/acme/app, git@github.com:acme/app.git
func ParseRepositoryRef(ref string) (RepositoryRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return RepositoryRef{}, &RepositoryNotFoundError{Ref: ref, Reason: "empty repository reference"}
	}

	u, err := giturls.Parse(ref)
	if err != nil {
		return RepositoryRef{}, &RepositoryNotFoundError{Ref: ref, Reason: "unparsable repository reference", Err: err}
	}

	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
	for _, seg := range segments {
		if seg == "." || seg == ".." {
			return RepositoryRef{}, &RepositoryNotFoundError{Ref: ref, Reason: "relative path segments are not allowed"}
		}
	}
	if len(segments) < 2 {
		return RepositoryRef{}, &RepositoryNotFoundError{Ref: ref, Reason: "owner and name are required"}
	}

	host := u.Hostname()
	if host == "" {
		host = u.Host
	}

	return RepositoryRef{
		URL:    ref,
		Scheme: u.Scheme,
		Host:   host,
		Owner:  segments[len(segments)-2],
		Name:   segments[len(segments)-1],
	}, nil
}

// directoryName はクローン先のディレクトリ名（host/path）を返す
func (r RepositoryRef) directoryName() (string, error) {
	u, err := giturls.Parse(r.URL)
	if err != nil {
		return "", err
	}

	host := r.Host
	if host == "" {
		host = "local"
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")

	return filepath.Join(host, filepath.FromSlash(path)), nil
}

// clonePath は cloneDir 配下のクローン先パスを返す。cloneDir の外に出る場合はエラー。
func (r RepositoryRef) clonePath(cloneDir string) (string, error) {
	dirName, err := r.directoryName()
	if err != nil {
		return "", &RepositoryNotFoundError{Ref: r.URL, Reason: "unparsable repository reference", Err: err}
	}
	repoPath := filepath.Join(cloneDir, dirName)

	rel, err := filepath.Rel(cloneDir, repoPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &RepositoryNotFoundError{Ref: r.URL, Reason: "clone path escapes clone directory"}
	}
	return repoPath, nil
}
