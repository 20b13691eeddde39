// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/ethergreen/internal/auth"
	"github.com/hitoshi/ethergreen/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Result, error)
	Login(ctx context.Context, email, password string) (*auth.Result, error)
	Me(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler はアカウント登録・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	Name          string `json:"name" validate:"required,max=100"`
	BirthDate     string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	BirthTime     string `json:"birth_time" validate:"omitempty,max=20"`
	BirthLocation string `json:"birth_location" validate:"omitempty,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// userResponse はユーザープロフィールのAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID              string                   `json:"id"`
	Email           string                   `json:"email"`
	Name            string                   `json:"name"`
	BirthDate       string                   `json:"birth_date,omitempty"`
	BirthTime       string                   `json:"birth_time,omitempty"`
	BirthLocation   string                   `json:"birth_location,omitempty"`
	HumanDesignType string                   `json:"human_design_type,omitempty"`
	GeneKeys        []string                 `json:"gene_keys"`
	Numerology      *model.NumerologyProfile `json:"numerology"`
	IsPremium       bool                     `json:"is_premium"`
	PremiumSince    *time.Time               `json:"premium_since,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Register はアカウントを作成し、トークンを返す。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		Name:          req.Name,
		BirthDate:     req.BirthDate,
		BirthTime:     req.BirthTime,
		BirthLocation: req.BirthLocation,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

// Login はメールアドレスとパスワードで認証し、トークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: result.Token, User: toUserResponse(result.User)})
}

// Me は現在のユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *model.User) userResponse {
	geneKeys := u.GeneKeys
	if geneKeys == nil {
		geneKeys = []string{}
	}
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		BirthDate:       u.BirthDate,
		BirthTime:       u.BirthTime,
		BirthLocation:   u.BirthLocation,
		HumanDesignType: u.HumanDesignType,
		GeneKeys:        geneKeys,
		Numerology:      u.Numerology,
		IsPremium:       u.IsPremium,
		PremiumSince:    u.PremiumSince,
		CreatedAt:       u.CreatedAt,
	}
}
