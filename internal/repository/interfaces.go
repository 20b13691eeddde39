// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// UpdateProfile はnilでないフィールドのみ更新し、更新後のユーザーを返す。
	// 見つからない場合はnilを返す。
	UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)

	// SaveNumerology は計算済みの数秘術プロフィールをキャッシュする。
	SaveNumerology(ctx context.Context, id string, profile *model.NumerologyProfile) error

	// SetPremium はユーザーをプレミアム会員にする。既にプレミアムの場合はpremium_sinceを維持する。
	SetPremium(ctx context.Context, id string, since time.Time) error

	// DeleteByID は指定IDのユーザーを削除する。
	// readings、chat_history、bio_scans、community_postsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ReadingRepository はタロットリーディングの永続化インターフェース。
type ReadingRepository interface {
	// Create はリーディングを保存する。
	Create(ctx context.Context, reading *model.Reading) error
	// ListByUserID はユーザーのリーディングをcreated_at降順で最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Reading, error)
}

// ChatRepository はオラクルとの会話履歴の永続化インターフェース。
type ChatRepository interface {
	Create(ctx context.Context, msg *model.ChatMessage) error
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ChatMessage, error)
}

// BioScanRepository はバイオスキャン結果の永続化インターフェース。
type BioScanRepository interface {
	Create(ctx context.Context, scan *model.BioScan) error
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.BioScan, error)
}

// PostRepository はコミュニティ投稿の永続化インターフェース。
type PostRepository interface {
	// Create は投稿を保存する。
	Create(ctx context.Context, post *model.CommunityPost) error
	// List は投稿をcreated_at降順で最大limit件返す。
	// categoryがmodel.PostCategoryAllの場合は全カテゴリを対象にする。
	List(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error)
}

// PaymentRepository は決済トランザクションの永続化インターフェース。
type PaymentRepository interface {
	// Create はトランザクションを保存する。
	Create(ctx context.Context, tx *model.PaymentTransaction) error

	// FindBySessionID はチェックアウトセッションIDでトランザクションを取得する。
	// 見つからない場合はnilを返す。
	FindBySessionID(ctx context.Context, sessionID string) (*model.PaymentTransaction, error)

	// UpdateStatus はトランザクションの状態を更新する。
	// 既にpaidのトランザクションは更新しない（冪等）。更新した場合にtrueを返す。
	UpdateStatus(ctx context.Context, sessionID string, status model.TransactionStatus, paymentStatus string) (bool, error)

	// ListPending は支払い未確定かつcreatedAfter以降に作成されたトランザクションを古い順に返す。
	ListPending(ctx context.Context, createdAfter time.Time, limit int) ([]*model.PaymentTransaction, error)
}
