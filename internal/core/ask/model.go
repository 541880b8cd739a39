package ask

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// AskParams は質問応答のパラメータを表す
type AskParams struct {
	ProjectID mo.Option[uuid.UUID] // プロジェクトID
	Question  string               // ユーザーの質問文
}

// Answer は質問応答の結果。回答本文は Stream から逐次読み出す。
type Answer struct {
	Stream         *Stream
	FileReferences []FileReference
	// PromptTokens はプロンプトのトークン数（Trimmer 未設定時は 0）
	PromptTokens int
}

// FileReference は回答の根拠として取得したファイル
type FileReference struct {
	FileName   string  `json:"fileName"`
	SourceCode string  `json:"sourceCode"`
	Summary    string  `json:"summary"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Outcome は回答ストリームの終了状態
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFallback  Outcome = "fallback"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeFailed    Outcome = "failed"
	OutcomeNoContext Outcome = "no_context"
)

// Prompt は回答生成に渡すプロンプト
type Prompt struct {
	System string
	User   string
}

// QuestionRecord は保存済みの質問と回答（追記のみ）
type QuestionRecord struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      uuid.UUID       `json:"projectId"`
	UserID         string          `json:"userId"`
	Question       string          `json:"question"`
	Answer         string          `json:"answer"`
	FileReferences []FileReference `json:"fileReferences"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// SaveAnswerParams は回答保存のパラメータ
type SaveAnswerParams struct {
	ProjectID      uuid.UUID
	UserID         string
	Question       string
	Answer         string
	FileReferences []FileReference
}
