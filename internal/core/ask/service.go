package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/repo-qa/internal/core/search"
)

const (
	// DefaultTimeout は回答生成のタイムアウト
	DefaultTimeout = 30 * time.Second
	// DefaultMaxSourceTokens はコンテキストに含める1ファイルあたりの最大トークン数
	DefaultMaxSourceTokens = 1500
	// terminalGrace は終端メッセージを配信するための猶予
	terminalGrace = 5 * time.Second
	streamBuffer  = 64
)

const (
	noContextMessage   = "I couldn't find any relevant code context."
	retrievalFailedMsg = "Error processing request."
	timedOutMessage    = "\n\n**Error:** Timed out while generating the answer. Please try again."
	generateFailedMsg  = "\n\n**Error:** Could not generate an answer. Please try again later."
)

var (
	// ErrInvalidInput は入力が不正な場合のエラー
	ErrInvalidInput = errors.New("invalid ask input")

	errStreamAbandoned = errors.New("stream abandoned by consumer")
)

// Retriever は質問に関連するファイルを取得する
type Retriever interface {
	Retrieve(ctx context.Context, projectID uuid.UUID, question string) ([]*search.Match, error)
}

// Generator は回答をストリーミング生成する。onToken がエラーを返した場合は生成を中止する。
type Generator interface {
	StreamAnswer(ctx context.Context, prompt Prompt, onToken func(string) error) error
}

// QuestionRepository は質問と回答の履歴を保存する
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, record *QuestionRecord) error
	ListQuestions(ctx context.Context, projectID uuid.UUID) ([]*QuestionRecord, error)
}

// AskService は質問応答のビジネスロジックを提供する
type AskService struct {
	retriever       Retriever
	generator       Generator
	questions       QuestionRepository
	trimmer         TokenTrimmer
	timeout         time.Duration
	maxSourceTokens int
	logger          *slog.Logger
}

type AskServiceOption func(*AskService)

// WithAskLogger は AskService にロガーを設定する
func WithAskLogger(logger *slog.Logger) AskServiceOption {
	return func(s *AskService) {
		s.logger = logger
	}
}

// WithTimeout は回答生成のタイムアウトを設定する
func WithTimeout(d time.Duration) AskServiceOption {
	return func(s *AskService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithTokenTrimmer はコンテキストのソースコードを切り詰める Trimmer を設定する
func WithTokenTrimmer(trimmer TokenTrimmer, maxSourceTokens int) AskServiceOption {
	return func(s *AskService) {
		s.trimmer = trimmer
		if maxSourceTokens > 0 {
			s.maxSourceTokens = maxSourceTokens
		}
	}
}

// NewAskService は新しいAskServiceを作成する
func NewAskService(
	retriever Retriever,
	generator Generator,
	questions QuestionRepository,
	opts ...AskServiceOption,
) *AskService {
	svc := &AskService{
		retriever:       retriever,
		generator:       generator,
		questions:       questions,
		timeout:         DefaultTimeout,
		maxSourceTokens: DefaultMaxSourceTokens,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	if svc.logger == nil {
		svc.logger = slog.Default()
	}

	return svc
}

// Ask は質問に関連するファイルを取得し、回答ストリームと参照ファイルを返す。
// 入力エラー以外は常にストリームを返し、ストリームは必ず終了状態に到達する。
func (s *AskService) Ask(ctx context.Context, params AskParams) (*Answer, error) {
	question := strings.TrimSpace(params.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}
	projectID, ok := params.ProjectID.Get()
	if !ok || projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}

	matches, err := s.retriever.Retrieve(ctx, projectID, question)
	if err != nil {
		if errors.Is(err, search.ErrNoRelevantContext) {
			s.logger.Info("関連するコンテキストが見つかりません", "projectID", projectID)
			return &Answer{
				Stream:         closedStream(noContextMessage, OutcomeNoContext),
				FileReferences: []FileReference{},
			}, nil
		}
		s.logger.Error("コンテキストの取得に失敗", "projectID", projectID, "error", err)
		return &Answer{
			Stream:         closedStream(retrievalFailedMsg, OutcomeFailed),
			FileReferences: []FileReference{},
		}, nil
	}

	refs := make([]FileReference, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, FileReference{
			FileName:   m.FileName,
			SourceCode: m.SourceCode,
			Summary:    m.Summary,
			Similarity: m.Similarity,
		})
	}

	s.logger.Info("回答生成を開始",
		"projectID", projectID,
		"references", len(refs),
	)

	prompt := BuildPrompt(question, refs, s.trimmer, s.maxSourceTokens)
	promptTokens := 0
	if s.trimmer != nil {
		promptTokens = s.trimmer.CountTokens(prompt.System) + s.trimmer.CountTokens(prompt.User)
		s.logger.Debug("プロンプトを構築しました", "projectID", projectID, "promptTokens", promptTokens)
	}

	stream := newStream(streamBuffer)
	go s.generate(ctx, stream, prompt, refs)

	return &Answer{
		Stream:         stream,
		FileReferences: refs,
		PromptTokens:   promptTokens,
	}, nil
}

// generate はストリームの唯一の生産者。どの経路でも finish を一度だけ呼ぶ。
func (s *AskService) generate(ctx context.Context, stream *Stream, prompt Prompt, refs []FileReference) {
	outcome := OutcomeFailed
	defer func() { stream.finish(outcome) }()

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	emitted := 0
	err := s.generator.StreamAnswer(genCtx, prompt, func(token string) error {
		if token == "" {
			return nil
		}
		if !stream.emit(genCtx, token) {
			if genCtx.Err() != nil {
				return genCtx.Err()
			}
			return errStreamAbandoned
		}
		emitted++
		return nil
	})

	termCtx, termCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalGrace)
	defer termCancel()

	switch {
	case err == nil && emitted == 0:
		s.logger.Warn("回答が空のためフォールバックを返します", "references", len(refs))
		stream.emit(termCtx, fallbackAnswer(refs))
		outcome = OutcomeFallback
	case err == nil:
		outcome = OutcomeCompleted
	case errors.Is(err, errStreamAbandoned):
		s.logger.Info("消費者が回答ストリームを離脱しました", "emitted", emitted)
	case errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Warn("回答生成がタイムアウトしました", "timeout", s.timeout, "emitted", emitted)
		stream.emit(termCtx, timedOutMessage)
		outcome = OutcomeTimedOut
	default:
		s.logger.Error("回答生成に失敗", "error", err, "emitted", emitted)
		stream.emit(termCtx, generateFailedMsg)
	}

	s.logger.Info("回答生成が終了",
		"outcome", outcome,
		"tokens", emitted,
		"duration", time.Since(startTime),
	)
}

// SaveAnswer は質問と回答を履歴として保存する
func (s *AskService) SaveAnswer(ctx context.Context, params SaveAnswerParams) (*QuestionRecord, error) {
	if params.ProjectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}
	if strings.TrimSpace(params.Question) == "" {
		return nil, fmt.Errorf("%w: question is required", ErrInvalidInput)
	}

	refs := params.FileReferences
	if refs == nil {
		refs = []FileReference{}
	}

	record := &QuestionRecord{
		ID:             uuid.New(),
		ProjectID:      params.ProjectID,
		UserID:         params.UserID,
		Question:       params.Question,
		Answer:         params.Answer,
		FileReferences: refs,
		CreatedAt:      time.Now(),
	}

	if err := s.questions.CreateQuestion(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	return record, nil
}

// ListQuestions はプロジェクトの質問履歴を新しい順に返す
func (s *AskService) ListQuestions(ctx context.Context, projectID uuid.UUID) ([]*QuestionRecord, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: projectID is required", ErrInvalidInput)
	}

	records, err := s.questions.ListQuestions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	return records, nil
}
