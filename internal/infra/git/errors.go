package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// RepositoryNotFoundError はリポジトリ参照が不正、またはリモートに存在しない場合のエラー
type RepositoryNotFoundError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *RepositoryNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository not found: %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("repository not found: %s: %s", e.Ref, e.Reason)
}

func (e *RepositoryNotFoundError) Unwrap() error {
	return e.Err
}

// AccessError は認証・認可に失敗した場合のエラー
type AccessError struct {
	Ref string
	Err error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access denied to repository %s: %v", e.Ref, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// classifyRemoteError は go-git のトランスポートエラーを型付きエラーに変換する
func classifyRemoteError(ref string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return &AccessError{Ref: ref, Err: err}
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return &RepositoryNotFoundError{Ref: ref, Reason: "remote repository does not exist", Err: err}
	default:
		return err
	}
}
