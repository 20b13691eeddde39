package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/ethergreen/internal/model"
	"github.com/hitoshi/ethergreen/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// UpdateProfile はnilでないフィールドのみ更新する。
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error)
	// Soulprint は数秘術・ヒューマンデザイン・遺伝子キーを統合したプロフィールを返す。
	Soulprint(ctx context.Context, userID string) (*user.Soulprint, error)
	// Withdraw はユーザーの退会処理を実行する。
	// リーディング、会話履歴、スキャン、投稿、決済記録も合わせて削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// profileUpdateRequest はプロフィール部分更新のリクエストボディ。
// 省略またはnullのフィールドは変更しない。
type profileUpdateRequest struct {
	Name            *string                  `json:"name" validate:"omitempty,max=100"`
	BirthDate       *string                  `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	BirthTime       *string                  `json:"birth_time" validate:"omitempty,max=20"`
	BirthLocation   *string                  `json:"birth_location" validate:"omitempty,max=200"`
	HumanDesignType *string                  `json:"human_design_type" validate:"omitempty,max=50"`
	GeneKeys        *[]string                `json:"gene_keys" validate:"omitempty,max=3"`
	Numerology      *model.NumerologyProfile `json:"numerology"`
}

type profileUpdateResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type soulprintResponse struct {
	User        userResponse             `json:"user"`
	Numerology  *model.NumerologyProfile `json:"numerology"`
	HumanDesign user.HumanDesign         `json:"human_design"`
	GeneKeys    map[string]user.GeneKey  `json:"gene_keys"`
	BioMarkers  user.BioMarkers          `json:"bio_markers"`
	IsPremium   bool                     `json:"is_premium"`
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /api/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req profileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), userID, model.ProfileUpdate{
		Name:            req.Name,
		BirthDate:       req.BirthDate,
		BirthTime:       req.BirthTime,
		BirthLocation:   req.BirthLocation,
		HumanDesignType: req.HumanDesignType,
		GeneKeys:        req.GeneKeys,
		Numerology:      req.Numerology,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, profileUpdateResponse{
		Message: "Profile updated",
		User:    toUserResponse(updated),
	})
}

// Soulprint はソウルプリントを返す。
// GET /api/profile/soulprint
func (h *UserHandler) Soulprint(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	sp, err := h.service.Soulprint(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, soulprintResponse{
		User:        toUserResponse(sp.User),
		Numerology:  sp.Numerology,
		HumanDesign: sp.HumanDesign,
		GeneKeys:    sp.GeneKeys,
		BioMarkers:  sp.BioMarkers,
		IsPremium:   sp.IsPremium,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
