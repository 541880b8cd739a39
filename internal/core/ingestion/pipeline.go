package ingestion

import (
	"context"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultMaxSummaryInputChars は要約に渡す先頭文字数
	DefaultMaxSummaryInputChars = 10000
	// DefaultMinSummaryLength は有効とみなす要約の最小文字数
	DefaultMinSummaryLength = 20
	// DefaultMinPrintableRatio はテキストとみなす印字可能文字の最小割合
	DefaultMinPrintableRatio = 0.85
	// DefaultWorkerCount は同時に処理するファイル数
	DefaultWorkerCount = 8
)

// PipelineConfig はファイル単位の処理設定
type PipelineConfig struct {
	MaxSummaryInputChars int
	MinSummaryLength     int
	MinPrintableRatio    float64
	WorkerCount          int
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		MaxSummaryInputChars: DefaultMaxSummaryInputChars,
		MinSummaryLength:     DefaultMinSummaryLength,
		MinPrintableRatio:    DefaultMinPrintableRatio,
		WorkerCount:          DefaultWorkerCount,
	}
}

// processDocument は1ファイルを 判定 → 要約 → Embedding → 検証 の順に処理する
func (s *IndexService) processDocument(ctx context.Context, projectID uuid.UUID, doc *SourceDocument) Outcome {
	cfg := s.pipelineConfig

	if !isMostlyText(doc.Content, cfg.MinPrintableRatio) {
		return skipOutcome(doc.Path, SkipNonText, nil)
	}

	summary, err := s.summarizer.SummarizeCode(ctx, doc.Path, truncateRunes(doc.Content, cfg.MaxSummaryInputChars))
	if err != nil {
		s.logger.Warn("要約の生成に失敗", "file", doc.Path, "error", err)
		return skipOutcome(doc.Path, SkipSummarizeFailed, err)
	}

	summary = strings.TrimSpace(summary)
	if utf8.RuneCountInString(summary) < cfg.MinSummaryLength {
		s.logger.Warn("要約が短すぎるためスキップ", "file", doc.Path, "length", utf8.RuneCountInString(summary))
		return skipOutcome(doc.Path, SkipEmptySummary, nil)
	}

	vector, err := s.embedder.Embed(ctx, summary)
	if err != nil {
		s.logger.Warn("Embeddingの生成に失敗", "file", doc.Path, "error", err)
		return skipOutcome(doc.Path, SkipEmbedFailed, err)
	}

	if !validEmbedding(vector, s.embedder.Dimension()) {
		s.logger.Warn("不正なEmbeddingのためスキップ", "file", doc.Path, "length", len(vector))
		return skipOutcome(doc.Path, SkipInvalidEmbedding, nil)
	}

	return recordOutcome(doc.Path, &FileEmbeddingRecord{
		ID:         uuid.New(),
		ProjectID:  projectID,
		FileName:   doc.Path,
		SourceCode: doc.Content,
		Summary:    summary,
		Embedding:  vector,
		CreatedAt:  time.Now(),
	})
}

// isValidRecord は保存直前の最終チェック
func isValidRecord(rec *FileEmbeddingRecord, dimension int) bool {
	return rec != nil &&
		strings.TrimSpace(rec.Summary) != "" &&
		validEmbedding(rec.Embedding, dimension)
}

// validEmbedding は次元数が一致し、NaN/Inf を含まず、ゼロベクトルでないことを確認する
func validEmbedding(vector []float32, dimension int) bool {
	if len(vector) == 0 || len(vector) != dimension {
		return false
	}
	nonZero := false
	for _, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if v != 0 {
			nonZero = true
		}
	}
	return nonZero
}

// isMostlyText は印字可能文字（改行・タブを含む）の割合が minRatio 以上かを判定する
func isMostlyText(content string, minRatio float64) bool {
	if strings.TrimSpace(content) == "" {
		return false
	}

	total, printable := 0, 0
	for _, r := range content {
		total++
		if r == utf8.RuneError {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(total) >= minRatio
}

// truncateRunes は先頭 n 文字（rune単位）を返す
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
