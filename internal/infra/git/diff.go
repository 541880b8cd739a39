package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/object"
)

var errDiffLimitReached = errors.New("diff limit reached")

// cappedWriter は上限バイト数に達した時点で書き込みを打ち切る
type cappedWriter struct {
	buf   bytes.Buffer
	limit int
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return 0, errDiffLimitReached
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return remaining, errDiffLimitReached
	}
	return w.buf.Write(p)
}

// commitPatch はコミットと最初の親（なければ空ツリー）との差分を返す
func commitPatch(ctx context.Context, commit *object.Commit, maxChars int) (string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("failed to get tree: %w", err)
	}

	parentTree := &object.Tree{}
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("failed to get parent commit: %w", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return "", fmt.Errorf("failed to get parent tree: %w", err)
		}
	}

	patch, err := parentTree.PatchContext(ctx, tree)
	if err != nil {
		return "", fmt.Errorf("failed to compute patch: %w", err)
	}

	// 1文字は最大4バイト。切り詰め判定用に1文字分余分に読む
	w := &cappedWriter{limit: 4*maxChars + 4}
	if maxChars <= 0 {
		w.limit = 0
	}
	if err := patch.Encode(w); err != nil && !errors.Is(err, errDiffLimitReached) {
		return "", fmt.Errorf("failed to encode patch: %w", err)
	}

	return truncateDiff(w.buf.String(), maxChars), nil
}

// truncateDiff は maxChars 文字を超える差分を切り詰めてマーカーで囲む
func truncateDiff(diff string, maxChars int) string {
	if utf8.RuneCountInString(diff) <= maxChars {
		return diff
	}

	cut := 0
	for i := range diff {
		if cut == maxChars {
			diff = diff[:i]
			break
		}
		cut++
	}

	return fmt.Sprintf("[TRUNCATED DIFF - SHOWING FIRST %d CHARACTERS]\n%s\n\n[END OF TRUNCATED DIFF]", maxChars, diff)
}
