package recommend

// Difficulty はファイルを読み始める難易度
type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyAdvanced Difficulty = "advanced"
)

// rank は並び替え用の順序（easy が先）
func (d Difficulty) rank() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	default:
		return 2
	}
}

// IndexedFile はインデックス済みファイルのメタデータ
type IndexedFile struct {
	Path    string
	Size    int64
	Summary string
}

// Recommendation は初めて読むのに向いたファイル
type Recommendation struct {
	Path        string     `json:"path"`
	Size        int64      `json:"size"`
	Difficulty  Difficulty `json:"difficulty"`
	Description string     `json:"description"`
	Summary     string     `json:"summary,omitempty"`
}
