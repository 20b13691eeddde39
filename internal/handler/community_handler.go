package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// CommunityServiceInterface はコミュニティハンドラーが必要とするサービスインターフェース。
type CommunityServiceInterface interface {
	Post(ctx context.Context, userID, content, category string) (*model.CommunityPost, error)
	Feed(ctx context.Context, category string, limit int) ([]*model.CommunityPost, error)
}

// CommunityHandler はコミュニティフィードのHTTPハンドラー。
type CommunityHandler struct {
	service CommunityServiceInterface
}

// NewCommunityHandler はCommunityHandlerを生成する。
func NewCommunityHandler(service CommunityServiceInterface) *CommunityHandler {
	return &CommunityHandler{service: service}
}

// 本文の長さ（1〜2000文字）はサニタイズ後にサービス層で検証する。
type postRequest struct {
	Content  string `json:"content" validate:"required"`
	Category string `json:"category"`
}

type postResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	Category  string    `json:"category"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

// Post は投稿を作成する。
// POST /api/community/post
func (h *CommunityHandler) Post(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	post, err := h.service.Post(r.Context(), userID, req.Content, req.Category)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// Feed は投稿を新しい順に返す。
// GET /api/community/feed?category=all&limit=20
func (h *CommunityHandler) Feed(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	posts, err := h.service.Feed(r.Context(), category, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]postResponse, len(posts))
	for i, p := range posts {
		resp[i] = toPostResponse(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toPostResponse(p *model.CommunityPost) postResponse {
	return postResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		UserName:  p.UserName,
		Content:   p.Content,
		Category:  string(p.Category),
		Likes:     p.Likes,
		CreatedAt: p.CreatedAt,
	}
}
