package model

import "time"

// PostCategory はコミュニティ投稿のカテゴリ。
type PostCategory string

const (
	PostCategoryGeneral        PostCategory = "general"
	PostCategoryTransit        PostCategory = "transit"
	PostCategoryGateActivation PostCategory = "gate_activation"
	PostCategoryInsight        PostCategory = "insight"
)

// PostCategoryAll はフィード取得時に全カテゴリを対象とする指定値。
const PostCategoryAll = "all"

// CommunityPost はコミュニティフィードの投稿。
type CommunityPost struct {
	ID        string
	UserID    string
	UserName  string
	Content   string
	Category  PostCategory
	Likes     int
	CreatedAt time.Time
}
