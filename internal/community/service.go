// Package community はコミュニティフィードへの投稿と閲覧を提供する。
package community

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/repository"
)

const (
	// AnonymousName はプロフィール名が未設定のユーザーの表示名。
	AnonymousName = "Anonymous Seeker"
	// DefaultFeedLimit はフィードの既定取得件数。
	DefaultFeedLimit = 20
	// MaxFeedLimit はフィードの最大取得件数。
	MaxFeedLimit = 100
	// MaxContentLength は投稿本文の最大文字数。
	MaxContentLength = 2000
)

var validCategories = map[model.PostCategory]bool{
	model.PostCategoryGeneral:        true,
	model.PostCategoryTransit:        true,
	model.PostCategoryGateActivation: true,
	model.PostCategoryInsight:        true,
}

// Sanitizer は投稿本文と表示名を無害化するインターフェース。
// security.ContentSanitizerServiceが実装する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	StripTags(raw string) string
}

// Service はコミュニティ投稿のサービス層。
type Service struct {
	postRepo  repository.PostRepository
	userRepo  repository.UserRepository
	sanitizer Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(postRepo repository.PostRepository, userRepo repository.UserRepository, sanitizer Sanitizer, logger *slog.Logger) *Service {
	return &Service{
		postRepo:  postRepo,
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// ParseCategory はカテゴリ文字列を検証する。空の場合はgeneral。
func ParseCategory(raw string) (model.PostCategory, error) {
	if raw == "" {
		return model.PostCategoryGeneral, nil
	}
	c := model.PostCategory(raw)
	if !validCategories[c] {
		return "", model.NewInvalidCategoryError(raw)
	}
	return c, nil
}

// Post は本文を無害化して投稿を保存する。
func (s *Service) Post(ctx context.Context, userID, content, category string) (*model.CommunityPost, error) {
	c, err := ParseCategory(category)
	if err != nil {
		return nil, err
	}

	clean := s.sanitizer.Sanitize(content)
	if clean == "" {
		return nil, model.NewValidationError("content must not be empty")
	}
	if len([]rune(clean)) > MaxContentLength {
		return nil, model.NewValidationError(fmt.Sprintf("content must be at most %d characters", MaxContentLength))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	name := s.sanitizer.StripTags(user.Name)
	if name == "" {
		name = AnonymousName
	}

	post := &model.CommunityPost{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserName:  name,
		Content:   clean,
		Category:  c,
		Likes:     0,
		CreatedAt: s.now().UTC(),
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}

	s.logger.Info("community post created",
		slog.String("user_id", userID),
		slog.String("category", string(c)),
	)
	return post, nil
}

// Feed は投稿を新しい順に返す。categoryが空またはallの場合は全カテゴリ。
// limitが0以下の場合はDefaultFeedLimit、MaxFeedLimitを超える場合はMaxFeedLimitに丸める。
func (s *Service) Feed(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error) {
	if category == "" {
		category = model.PostCategoryAll
	}
	if category != model.PostCategoryAll {
		if !validCategories[model.PostCategory(category)] {
			return nil, model.NewInvalidCategoryError(category)
		}
	}

	switch {
	case limit <= 0:
		limit = DefaultFeedLimit
	case limit > MaxFeedLimit:
		limit = MaxFeedLimit
	}

	return s.postRepo.List(ctx, category, limit)
}
