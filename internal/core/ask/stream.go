package ask

import (
	"context"
	"strings"
	"sync"
)

// Stream は回答テキストを逐次配信する単一生産者・単一消費者のストリーム。
// 生産者は必ず finish を一度だけ呼び、Tokens() のチャネルは必ず閉じられる。
type Stream struct {
	tokens  chan string
	done    chan struct{}
	abandon chan struct{}

	finishOnce  sync.Once
	abandonOnce sync.Once

	mu      sync.Mutex
	outcome Outcome
	text    strings.Builder
}

func newStream(buffer int) *Stream {
	return &Stream{
		tokens:  make(chan string, buffer),
		done:    make(chan struct{}),
		abandon: make(chan struct{}),
	}
}

// Tokens は回答の断片を受け取るチャネルを返す。終了時に閉じられる。
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Done はストリーム終了時に閉じられるチャネルを返す
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Outcome は終了状態を返す。終了前は空文字列。
func (s *Stream) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Text は配信済みの回答全文を返す
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Close は消費者が読み出しを打ち切ったことを生産者に通知する
func (s *Stream) Close() {
	s.abandonOnce.Do(func() { close(s.abandon) })
}

// Collect はストリームを最後まで読み、全文と終了状態を返す
func (s *Stream) Collect(ctx context.Context) (string, Outcome, error) {
	var sb strings.Builder
	for {
		select {
		case tok, ok := <-s.tokens:
			if !ok {
				return sb.String(), s.Outcome(), nil
			}
			sb.WriteString(tok)
		case <-ctx.Done():
			s.Close()
			return sb.String(), s.Outcome(), ctx.Err()
		}
	}
}

// emit は断片を送る。消費者が離脱したか ctx が終了した場合は false を返す。
func (s *Stream) emit(ctx context.Context, chunk string) bool {
	select {
	case s.tokens <- chunk:
		s.mu.Lock()
		s.text.WriteString(chunk)
		s.mu.Unlock()
		return true
	case <-s.abandon:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Stream) finish(outcome Outcome) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.outcome = outcome
		s.mu.Unlock()
		close(s.tokens)
		close(s.done)
	})
}

// closedStream は message を1つだけ配信して終了済みのストリームを返す
func closedStream(message string, outcome Outcome) *Stream {
	s := newStream(1)
	s.tokens <- message
	s.text.WriteString(message)
	s.finish(outcome)
	return s
}
