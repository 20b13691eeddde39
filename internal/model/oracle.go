package model

import "time"

// ChatMessage はオラクルとの1往復の会話記録。
type ChatMessage struct {
	ID             string
	UserID         string
	UserMessage    string
	OracleResponse string
	Context        string
	CreatedAt      time.Time
}

// Recommendations はバイオスキャン結果に付随する推奨事項。
type Recommendations struct {
	Food      string `json:"food"`
	Herb      string `json:"herb"`
	Frequency string `json:"frequency"`
	Peptide   string `json:"peptide"`
}

// BioScan は音声によるバイオレゾナンススキャンの記録。
type BioScan struct {
	ID                string
	UserID            string
	Transcription     string
	Analysis          string
	DominantFrequency int // Hz
	WeakestFrequency  int // Hz
	Recommendations   Recommendations
	VitalityScore     int
	CreatedAt         time.Time
}
