package filter

import (
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileNames はリポジトリ直下から読み込む除外設定ファイル
var IgnoreFileNames = []string{".gitignore", ".repoqaignore"}

// IgnoreFilter は .gitignore 形式のパターンマッチングを提供します
type IgnoreFilter struct {
	patterns *gitignore.GitIgnore
}

// NewIgnoreFilter はデフォルトの除外パターンに、リポジトリの除外ファイルの内容を加えた IgnoreFilter を作成します
func NewIgnoreFilter(ignoreFileContents ...string) *IgnoreFilter {
	patterns := getDefaultIgnorePatterns()
	for _, content := range ignoreFileContents {
		patterns = append(patterns, parseIgnoreLines(content)...)
	}

	return &IgnoreFilter{
		patterns: gitignore.CompileIgnoreLines(patterns...),
	}
}

// ShouldIgnore はパスが除外対象かどうかを判定します
func (f *IgnoreFilter) ShouldIgnore(path string) bool {
	if f == nil || f.patterns == nil {
		return false
	}
	return f.patterns.MatchesPath(path)
}

// parseIgnoreLines は空行とコメント行を除いたパターンを返します
func parseIgnoreLines(content string) []string {
	var patterns []string
	for _, line := range strings.FieldsFunc(content, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// getDefaultIgnorePatterns はデフォルトの除外パターンを返します
func getDefaultIgnorePatterns() []string {
	return []string{
		// Git関連
		".git",
		".gitignore",
		".gitattributes",
		".gitmodules",

		// ロックファイル
		"package-lock.json",
		"yarn.lock",
		"pnpm-lock.yaml",
		"go.sum",
		"Cargo.lock",
		"poetry.lock",
		"*.lock",

		// 依存関係・ビルド成果物
		"node_modules",
		"vendor",
		"dist",
		"build",
		"target",
		"out",
		"bin",
		"obj",
		".next",
		".nuxt",

		// 圧縮済みアセット
		"*.min.js",
		"*.min.css",
		"*.map",

		// IDE/エディタ関連
		".vscode",
		".idea",
		".DS_Store",
		"*.swp",
		"*~",

		// ログ・一時ファイル
		"*.log",
		"*.tmp",
		"tmp",

		// 環境変数・機密情報
		".env",
		".env.*",
		"*.pem",
		"*.key",
		"*.crt",
		"*.p12",

		// バイナリ・アーカイブ
		"*.exe",
		"*.dll",
		"*.so",
		"*.dylib",
		"*.a",
		"*.o",
		"*.jar",
		"*.zip",
		"*.tar",
		"*.gz",
		"*.7z",

		// 画像・メディア・フォント
		"*.png",
		"*.jpg",
		"*.jpeg",
		"*.gif",
		"*.ico",
		"*.webp",
		"*.mp4",
		"*.mp3",
		"*.pdf",
		"*.ttf",
		"*.woff",
		"*.woff2",

		// データベース
		"*.db",
		"*.sqlite",

		// カバレッジ・キャッシュ
		"coverage",
		".cache",
		"__pycache__",
		"*.pyc",
	}
}
