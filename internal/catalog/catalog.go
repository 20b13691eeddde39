// Package catalog はペプチド・ハーブ・周波数のウェルネスカタログ検索を提供する。
// カタログはプロセス内の定数で、読み取り専用。
package catalog

import "strings"

// カタログの種別
const (
	TypePeptides    = "peptides"
	TypeHerbs       = "herbs"
	TypeFrequencies = "frequencies"
	// TypeAll は全種別を検索対象にする指定値。
	TypeAll = "all"
)

// Entry はカタログの1項目。種別によって使う属性が異なるため、未使用の属性は空になる。
type Entry struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description"`
	Frequency   string `json:"frequency,omitempty"`
	Element     string `json:"element,omitempty"`
	Hz          int    `json:"hz,omitempty"`
}

// typeOrder は検索結果に並べる種別の順序。
var typeOrder = []string{TypePeptides, TypeHerbs, TypeFrequencies}

var entries = map[string][]Entry{
	TypePeptides: {
		{Name: "BPC-157", Category: "healing", Description: "Body Protection Compound, gut healing, tissue repair", Frequency: "528Hz"},
		{Name: "Epithalon", Category: "longevity", Description: "Telomerase activator, anti-aging peptide", Frequency: "741Hz"},
		{Name: "Semax", Category: "cognitive", Description: "Nootropic peptide, BDNF enhancer", Frequency: "639Hz"},
		{Name: "TB-500", Category: "healing", Description: "Thymosin Beta-4, wound healing, flexibility", Frequency: "417Hz"},
	},
	TypeHerbs: {
		{Name: "Ashwagandha", Category: "adaptogen", Description: "Stress reduction, cortisol balance", Element: "Earth"},
		{Name: "Lion's Mane", Category: "cognitive", Description: "NGF support, brain regeneration", Element: "Air"},
		{Name: "Reishi", Category: "immune", Description: "Immune modulation, spirit calming", Element: "Water"},
		{Name: "Rhodiola", Category: "energy", Description: "Energy, endurance, altitude adaptation", Element: "Fire"},
	},
	TypeFrequencies: {
		{Hz: 396, Name: "Liberation", Description: "Liberating guilt and fear"},
		{Hz: 417, Name: "Change", Description: "Undoing situations and facilitating change"},
		{Hz: 528, Name: "Transformation", Description: "Transformation and miracles, DNA repair"},
		{Hz: 639, Name: "Connection", Description: "Connecting relationships"},
		{Hz: 741, Name: "Awakening", Description: "Awakening intuition"},
		{Hz: 852, Name: "Spiritual", Description: "Returning to spiritual order"},
	},
}

// IsValidType は検索対象の種別として有効かを返す。
func IsValidType(t string) bool {
	if t == TypeAll {
		return true
	}
	_, ok := entries[t]
	return ok
}

// Search は名前または説明に query を含む項目を返す（大文字小文字を区別しない）。
// 空のqueryは指定種別の全項目に一致する。
func Search(query, entryType string) []Entry {
	if entryType == "" {
		entryType = TypeAll
	}
	q := strings.ToLower(strings.TrimSpace(query))

	results := make([]Entry, 0)
	for _, t := range typeOrder {
		if entryType != TypeAll && entryType != t {
			continue
		}
		for _, e := range entries[t] {
			if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Description), q) {
				e.Type = t
				results = append(results, e)
			}
		}
	}
	return results
}
