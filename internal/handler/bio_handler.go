package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/ethergreen/internal/model"
)

// BioServiceInterface はバイオスキャンハンドラーが必要とするサービスインターフェース。
type BioServiceInterface interface {
	Scan(ctx context.Context, userID, audioBase64 string) (*model.BioScan, error)
	History(ctx context.Context, userID string) ([]*model.BioScan, error)
}

// BioHandler はバイオレゾナンススキャンのHTTPハンドラー。
type BioHandler struct {
	service BioServiceInterface
}

// NewBioHandler はBioHandlerを生成する。
func NewBioHandler(service BioServiceInterface) *BioHandler {
	return &BioHandler{service: service}
}

type scanRequest struct {
	AudioBase64 string `json:"audio_base64" validate:"required"`
}

type scanResponse struct {
	ID                string                `json:"id"`
	Transcription     string                `json:"transcription"`
	Analysis          string                `json:"analysis"`
	DominantFrequency int                   `json:"dominant_frequency"`
	WeakestFrequency  int                   `json:"weakest_frequency"`
	Recommendations   model.Recommendations `json:"recommendations"`
	VitalityScore     int                   `json:"vitality_score"`
	CreatedAt         time.Time             `json:"created_at"`
}

// Scan は音声サンプルを解析する。
// POST /api/bio/scan
func (h *BioHandler) Scan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	scan, err := h.service.Scan(r.Context(), userID, req.AudioBase64)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanResponse(scan))
}

// History はスキャン履歴を新しい順に返す。
// GET /api/bio/history
func (h *BioHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	scans, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp := make([]scanResponse, len(scans))
	for i, s := range scans {
		resp[i] = toScanResponse(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toScanResponse(s *model.BioScan) scanResponse {
	return scanResponse{
		ID:                s.ID,
		Transcription:     s.Transcription,
		Analysis:          s.Analysis,
		DominantFrequency: s.DominantFrequency,
		WeakestFrequency:  s.WeakestFrequency,
		Recommendations:   s.Recommendations,
		VitalityScore:     s.VitalityScore,
		CreatedAt:         s.CreatedAt,
	}
}
