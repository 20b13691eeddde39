// Package tarot はタロットカードの抽選とリーディング生成を提供する。
package tarot

import "github.com/hitoshi/ethergreen/internal/model"

// majorArcana は大アルカナ22枚の定義。IDは0〜21で一意。
var majorArcana = []model.CardDefinition{
	{ID: 0, Name: "The Fool", UprightMeaning: "New beginnings, innocence, spontaneity", ReversedMeaning: "Recklessness, taken advantage of"},
	{ID: 1, Name: "The Magician", UprightMeaning: "Manifestation, resourcefulness, power", ReversedMeaning: "Manipulation, poor planning"},
	{ID: 2, Name: "The High Priestess", UprightMeaning: "Intuition, sacred knowledge, divine feminine", ReversedMeaning: "Secrets, disconnected from intuition"},
	{ID: 3, Name: "The Empress", UprightMeaning: "Fertility, femininity, beauty, nature", ReversedMeaning: "Creative block, dependence on others"},
	{ID: 4, Name: "The Emperor", UprightMeaning: "Authority, structure, control, fatherhood", ReversedMeaning: "Tyranny, rigidity"},
	{ID: 5, Name: "The Hierophant", UprightMeaning: "Spiritual wisdom, tradition, conformity", ReversedMeaning: "Personal beliefs, freedom"},
	{ID: 6, Name: "The Lovers", UprightMeaning: "Love, harmony, relationships, values alignment", ReversedMeaning: "Self-love, disharmony"},
	{ID: 7, Name: "The Chariot", UprightMeaning: "Direction, control, willpower, success", ReversedMeaning: "Lack of control, aggression"},
	{ID: 8, Name: "Strength", UprightMeaning: "Courage, patience, control, compassion", ReversedMeaning: "Self-doubt, weakness"},
	{ID: 9, Name: "The Hermit", UprightMeaning: "Soul-searching, introspection, being alone", ReversedMeaning: "Isolation, loneliness"},
	{ID: 10, Name: "Wheel of Fortune", UprightMeaning: "Good luck, karma, life cycles, destiny", ReversedMeaning: "Bad luck, resistance to change"},
	{ID: 11, Name: "Justice", UprightMeaning: "Justice, fairness, truth, cause and effect", ReversedMeaning: "Unfairness, lack of accountability"},
	{ID: 12, Name: "The Hanged Man", UprightMeaning: "Pause, surrender, letting go, new perspectives", ReversedMeaning: "Delays, resistance"},
	{ID: 13, Name: "Death", UprightMeaning: "Endings, change, transformation, transition", ReversedMeaning: "Resistance to change, stagnation"},
	{ID: 14, Name: "Temperance", UprightMeaning: "Balance, moderation, patience, purpose", ReversedMeaning: "Imbalance, excess"},
	{ID: 15, Name: "The Devil", UprightMeaning: "Shadow self, attachment, addiction, restriction", ReversedMeaning: "Releasing limiting beliefs"},
	{ID: 16, Name: "The Tower", UprightMeaning: "Sudden change, upheaval, chaos, revelation", ReversedMeaning: "Fear of change, avoiding disaster"},
	{ID: 17, Name: "The Star", UprightMeaning: "Hope, faith, purpose, renewal, spirituality", ReversedMeaning: "Lack of faith, despair"},
	{ID: 18, Name: "The Moon", UprightMeaning: "Illusion, fear, anxiety, subconscious", ReversedMeaning: "Release of fear, repressed emotion"},
	{ID: 19, Name: "The Sun", UprightMeaning: "Positivity, fun, warmth, success, vitality", ReversedMeaning: "Inner child issues, negativity"},
	{ID: 20, Name: "Judgement", UprightMeaning: "Judgement, rebirth, inner calling, absolution", ReversedMeaning: "Self-doubt, refusal of self-examination"},
	{ID: 21, Name: "The World", UprightMeaning: "Completion, integration, accomplishment", ReversedMeaning: "Seeking closure, short-cuts"},
}

// MajorArcana は大アルカナ22枚のコピーを返す。
// 呼び出し側が変更してもカタログには影響しない。
func MajorArcana() []model.CardDefinition {
	deck := make([]model.CardDefinition, len(majorArcana))
	copy(deck, majorArcana)
	return deck
}

// DeckSize は標準デッキの枚数。
const DeckSize = 22
