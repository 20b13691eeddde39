package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// TarotServiceInterface はタロットハンドラーが必要とするサービスインターフェース。
type TarotServiceInterface interface {
	DrawReading(ctx context.Context, userID, spreadType string, question *string) (*model.Reading, error)
	History(ctx context.Context, userID string) ([]*model.Reading, error)
	Cards() []model.CardDefinition
}

// TarotHandler はタロットリーディングのHTTPハンドラー。
type TarotHandler struct {
	service TarotServiceInterface
}

// NewTarotHandler はTarotHandlerを生成する。
func NewTarotHandler(service TarotServiceInterface) *TarotHandler {
	return &TarotHandler{service: service}
}

// drawRequest はカード抽選のリクエストボディ。
// 未知のspread_typeはエラーにせず1枚引きとして扱うため、値の検証はしない。
type drawRequest struct {
	SpreadType string  `json:"spread_type" validate:"max=50"`
	Question   *string `json:"question" validate:"omitempty,max=1000"`
}

type readingResponse struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	SpreadType     string            `json:"spread_type"`
	Question       *string           `json:"question"`
	Cards          []model.DrawnCard `json:"cards"`
	Interpretation string            `json:"interpretation"`
	CreatedAt      time.Time         `json:"created_at"`
}

type cardResponse struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	UprightMeaning  string `json:"meaning"`
	ReversedMeaning string `json:"reversed_meaning"`
}

// Draw はカードを引き、解釈付きのリーディングを返す。
// POST /api/tarot/draw
func (h *TarotHandler) Draw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req drawRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	question := req.Question
	if question != nil && strings.TrimSpace(*question) == "" {
		question = nil
	}

	reading, err := h.service.DrawReading(r.Context(), userID, req.SpreadType, question)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toReadingResponse(reading))
}

// History はリーディング履歴を新しい順に返す。
// GET /api/tarot/history
func (h *TarotHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	readings, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]readingResponse, len(readings))
	for i, reading := range readings {
		resp[i] = toReadingResponse(reading)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cards はデッキ全体を返す。
// GET /api/tarot/cards
func (h *TarotHandler) Cards(w http.ResponseWriter, r *http.Request) {
	deck := h.service.Cards()
	resp := make([]cardResponse, len(deck))
	for i, c := range deck {
		resp[i] = cardResponse{
			ID:              c.ID,
			Name:            c.Name,
			UprightMeaning:  c.UprightMeaning,
			ReversedMeaning: c.ReversedMeaning,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func toReadingResponse(reading *model.Reading) readingResponse {
	return readingResponse{
		ID:             reading.ID,
		UserID:         reading.UserID,
		SpreadType:     reading.SpreadType,
		Question:       reading.Question,
		Cards:          reading.Cards,
		Interpretation: reading.Interpretation,
		CreatedAt:      reading.CreatedAt,
	}
}
