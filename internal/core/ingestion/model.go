package ingestion

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// SourceDocument はリポジトリから取得されたファイルを表す（永続化しない）
type SourceDocument struct {
	Path        string // リポジトリルートからの相対パス
	Content     string // ファイルの内容
	Size        int64  // サイズ（バイト）
	ContentHash string // 内容のハッシュ（Gitのblobハッシュ）
	Language    string // 言語名（判定できない場合は空）
}

// FileEmbeddingRecord はファイル単位の要約とそのEmbedding
type FileEmbeddingRecord struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	FileName   string
	SourceCode string
	Summary    string
	Embedding  []float32
	CreatedAt  time.Time
}

// SkipReason はファイルがインデックス対象外となった理由
type SkipReason string

const (
	SkipNonText          SkipReason = "non_text"
	SkipSummarizeFailed  SkipReason = "summarize_failed"
	SkipEmptySummary     SkipReason = "empty_summary"
	SkipEmbedFailed      SkipReason = "embed_failed"
	SkipInvalidEmbedding SkipReason = "invalid_embedding"
)

// Skip はスキップ理由と原因エラー（あれば）
type Skip struct {
	Reason SkipReason
	Err    error
}

// Outcome は1ファイルの処理結果。Right が候補レコード、Left がスキップ。
type Outcome struct {
	Path   string
	Result mo.Either[Skip, *FileEmbeddingRecord]
}

func recordOutcome(path string, rec *FileEmbeddingRecord) Outcome {
	return Outcome{Path: path, Result: mo.Right[Skip, *FileEmbeddingRecord](rec)}
}

func skipOutcome(path string, reason SkipReason, err error) Outcome {
	return Outcome{Path: path, Result: mo.Left[Skip, *FileEmbeddingRecord](Skip{Reason: reason, Err: err})}
}

// IndexResult はインデックス化処理の結果を表す
type IndexResult struct {
	ProjectID    uuid.UUID          `json:"projectId"`
	Loaded       int                `json:"loaded"`       // 読み込んだファイル数
	Indexed      int                `json:"indexed"`      // 保存に成功したレコード数
	Skipped      map[SkipReason]int `json:"skipped"`      // 理由ごとのスキップ数
	FailedWrites int                `json:"failedWrites"` // 保存に失敗したレコード数
	Removed      int64              `json:"removed"`      // リポジトリから消えたファイルの削除数
	Stored       int                `json:"stored"`       // 完了後にプロジェクトに保存されているレコード数
	Languages    map[string]int     `json:"languages"`    // 保存したファイルの言語別件数
	Duration     time.Duration      `json:"duration"`
}

// SkippedTotal はスキップ数の合計を返す
func (r *IndexResult) SkippedTotal() int {
	total := 0
	for _, n := range r.Skipped {
		total += n
	}
	return total
}
