package model

import "time"

// CardDefinition はタロットカードの定義。プロセス起動時に1回だけ定義され、変更されない。
type CardDefinition struct {
	ID              int
	Name            string
	UprightMeaning  string
	ReversedMeaning string
}

// DrawnCard は抽選されたカード。正位置/逆位置の向きを持つ。
// JSONBとして永続化するためタグを付与している。
type DrawnCard struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	UprightMeaning  string `json:"meaning"`
	ReversedMeaning string `json:"reversed_meaning"`
	IsReversed      bool   `json:"reversed"`
}

// Orientation は向きのラベル（Upright / Reversed）を返す。
func (c DrawnCard) Orientation() string {
	if c.IsReversed {
		return "Reversed"
	}
	return "Upright"
}

// Reading はタロットリーディングの記録。作成後は変更されない。
type Reading struct {
	ID             string
	UserID         string
	SpreadType     string
	Question       *string // 未指定の場合はnil
	Cards          []DrawnCard
	Interpretation string
	CreatedAt      time.Time
}
