// Package auth はメールアドレスとパスワードによる認証を提供する。
// ログイン成功時にはBearerトークンとして使うJWTを発行する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/repository"
)

// RegisterInput はユーザー登録の入力値。出生情報は任意。
type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	BirthDate     string
	BirthTime     string
	BirthLocation string
}

// Result は登録・ログインの結果。
type Result struct {
	Token string
	User  *model.User
}

// Service は認証のユースケースを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	hashCost int
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenIssuer) *Service {
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを作成してトークンを発行する。
// 既に登録済みのメールアドレスの場合はEMAIL_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	email := NormalizeEmail(in.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := HashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:            uuid.New().String(),
		Email:         email,
		PasswordHash:  hash,
		Name:          strings.TrimSpace(in.Name),
		BirthDate:     in.BirthDate,
		BirthTime:     in.BirthTime,
		BirthLocation: in.BirthLocation,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 同時登録で一意制約に当たった場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	return &Result{Token: token, User: user}, nil
}

// Login はメールアドレスとパスワードを検証してトークンを発行する。
// ユーザーが存在しない場合とパスワード不一致は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to look up user by email: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := CheckPassword(user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login failed", slog.String("user_id", user.ID))
		return nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Result{Token: token, User: user}, nil
}

// Me は認証済みユーザーを返す。
func (s *Service) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// VerifyToken はトークンを検証してユーザーIDを返す。
// 認証ミドルウェアから使用する。
func (s *Service) VerifyToken(token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.UserID(), nil
}
