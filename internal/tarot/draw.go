package tarot

import (
	"errors"
	"fmt"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/random"
)

// スプレッド種別
const (
	SpreadSingle      = "single"
	SpreadThreeCard   = "three_card"
	SpreadCelticCross = "celtic_cross"
)

// ReversedProbability はカード1枚ごとに逆位置となる確率。
const ReversedProbability = 0.3

// ErrInvalidSpread はスプレッドの枚数がデッキ枚数を超える場合のエラー。
var ErrInvalidSpread = errors.New("spread requires more cards than the deck holds")

var spreadCounts = map[string]int{
	SpreadSingle:      1,
	SpreadThreeCard:   3,
	SpreadCelticCross: 10,
}

// CardCount はスプレッド種別に対応する枚数を返す。未知の種別は1枚。
func CardCount(spreadType string) int {
	if n, ok := spreadCounts[spreadType]; ok {
		return n
	}
	return 1
}

// Draw はデッキから重複なしでカードを抽選し、1枚ずつ独立に向きを決める。
// 選択は部分Fisher-Yatesで行うため、n枚の組み合わせはすべて等確率になり、
// 選ばれた順序がそのまま並び順になる。
func Draw(spreadType string, deck []model.CardDefinition, rng random.Source) ([]model.DrawnCard, error) {
	n := CardCount(spreadType)
	if n > len(deck) {
		return nil, fmt.Errorf("%w: %s needs %d cards, deck has %d", ErrInvalidSpread, spreadType, n, len(deck))
	}

	idx := make([]int, len(deck))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}

	// 重複排除が確定してから向きを割り当てる
	cards := make([]model.DrawnCard, n)
	for i := 0; i < n; i++ {
		def := deck[idx[i]]
		cards[i] = model.DrawnCard{
			ID:              def.ID,
			Name:            def.Name,
			UprightMeaning:  def.UprightMeaning,
			ReversedMeaning: def.ReversedMeaning,
		}
	}
	for i := range cards {
		cards[i].IsReversed = rng.Float64() < ReversedProbability
	}

	return cards, nil
}
