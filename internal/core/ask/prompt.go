package ask

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert AI code assistant. Answer the user's question based strictly on the provided context."

const formatInstructions = `Answer in Markdown.
- Cite the file names you relied on.
- Include short code snippets only when they clarify the answer.
- If the context does not contain the answer, say so instead of guessing.`

// TokenTrimmer はテキストのトークン数を数え、上限に収める
type TokenTrimmer interface {
	CountTokens(text string) int
	TrimToTokenLimit(text string, maxTokens int) string
}

// BuildPrompt は取得したファイルをコンテキストとする回答生成用プロンプトを構築する
func BuildPrompt(question string, refs []FileReference, trimmer TokenTrimmer, maxSourceTokens int) Prompt {
	var sb strings.Builder

	sb.WriteString("Context:\n")
	for _, ref := range refs {
		source := ref.SourceCode
		if trimmer != nil && maxSourceTokens > 0 {
			source = trimmer.TrimToTokenLimit(source, maxSourceTokens)
		}

		sb.WriteString(fmt.Sprintf("\n**File:** %s\n", ref.FileName))
		if ref.Summary != "" {
			sb.WriteString(fmt.Sprintf("**Summary:** %s\n", ref.Summary))
		}
		sb.WriteString("```\n")
		sb.WriteString(source)
		if !strings.HasSuffix(source, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
	}

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n\n")
	sb.WriteString(formatInstructions)

	return Prompt{
		System: systemPrompt,
		User:   sb.String(),
	}
}

// fallbackAnswer は生成結果が空だった場合に、取得したファイルの要約を列挙した回答を返す
func fallbackAnswer(refs []FileReference) string {
	var sb strings.Builder
	sb.WriteString("I couldn't generate a detailed answer, but these files look relevant:\n")
	for _, ref := range refs {
		summary := strings.TrimSpace(ref.Summary)
		if summary == "" {
			summary = "(no summary)"
		}
		sb.WriteString(fmt.Sprintf("\n- **%s**: %s", ref.FileName, summary))
	}
	sb.WriteString("\n")
	return sb.String()
}
