// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// プロフィール項目（出生情報、ヒューマンデザイン等）は任意入力のため空文字を許容する。
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Name            string
	BirthDate       string // YYYY-MM-DD
	BirthTime       string
	BirthLocation   string
	HumanDesignType string
	GeneKeys        []string
	Numerology      *NumerologyProfile // 未計算の場合はnil
	IsPremium       bool
	PremiumSince    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DisplayName は表示名を返す。未設定の場合はfallbackを返す。
func (u *User) DisplayName(fallback string) string {
	if u == nil || u.Name == "" {
		return fallback
	}
	return u.Name
}

// NumerologyProfile は生年月日から導出される数秘術プロフィール。
// 一度計算したらユーザーレコードにキャッシュする。
type NumerologyProfile struct {
	LifePath         int `json:"life_path"`
	ExpressionNumber int `json:"expression_number"`
}

// ProfileUpdate はプロフィールの部分更新内容。nilのフィールドは変更しない。
type ProfileUpdate struct {
	Name            *string
	BirthDate       *string
	BirthTime       *string
	BirthLocation   *string
	HumanDesignType *string
	GeneKeys        *[]string
	Numerology      *NumerologyProfile
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProfileUpdate) IsEmpty() bool {
	return p.Name == nil && p.BirthDate == nil && p.BirthTime == nil &&
		p.BirthLocation == nil && p.HumanDesignType == nil &&
		p.GeneKeys == nil && p.Numerology == nil
}
