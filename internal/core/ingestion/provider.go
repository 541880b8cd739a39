package ingestion

import (
	"context"

	"github.com/samber/mo"
)

// DocumentLoader はリポジトリからファイル一覧を読み込むインターフェース
type DocumentLoader interface {
	// LoadDocuments はデフォルトブランチのファイルを、除外ルール適用後に返す
	LoadDocuments(ctx context.Context, repositoryURL string, credential mo.Option[string]) ([]*SourceDocument, error)
}

// Summarizer はソースコードの要約を生成するインターフェース
type Summarizer interface {
	SummarizeCode(ctx context.Context, fileName, source string) (string, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension はベクトル次元数を返す
	Dimension() int
}
