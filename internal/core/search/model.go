package search

import (
	"github.com/google/uuid"
)

// Match は類似度検索でヒットしたファイル要約
type Match struct {
	ID         uuid.UUID `json:"id"`
	FileName   string    `json:"fileName"`
	SourceCode string    `json:"sourceCode"`
	Summary    string    `json:"summary"`
	Similarity float64   `json:"similarity"`
}

// Tier は段階的検索の1段階。Final の段階は類似度の下限を設けない。
type Tier struct {
	MinSimilarity float64
	Final         bool
}

// DefaultTiers はデフォルトの段階（0.5 → 0.3 → 下限なし）
func DefaultTiers() []Tier {
	return []Tier{
		{MinSimilarity: 0.5},
		{MinSimilarity: 0.3},
		{Final: true},
	}
}

// TiersFromThresholds は閾値の列から段階を組み立て、末尾に下限なしの段階を追加する
func TiersFromThresholds(thresholds []float64) []Tier {
	tiers := make([]Tier, 0, len(thresholds)+1)
	for _, th := range thresholds {
		tiers = append(tiers, Tier{MinSimilarity: th})
	}
	return append(tiers, Tier{Final: true})
}
