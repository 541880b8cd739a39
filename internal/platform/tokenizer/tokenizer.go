package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding は Chat / Embedding モデル共通のエンコーディング
const DefaultEncoding = "cl100k_base"

// Counter は tiktoken を利用したトークン計数・切り詰め
type Counter struct {
	encoding *tiktoken.Tiktoken
}

// New は指定エンコーディングの Counter を作成する
func New(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &Counter{encoding: enc}, nil
}

// CountTokens はテキストのトークン数を返す
func (c *Counter) CountTokens(text string) int {
	if c == nil || c.encoding == nil {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// TrimToTokenLimit はテキストを maxTokens トークン以内に切り詰める
func (c *Counter) TrimToTokenLimit(text string, maxTokens int) string {
	if c == nil || c.encoding == nil || maxTokens <= 0 {
		return text
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}
