package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// アプリケーション情報
const (
	AppName    = "Dr Ethergreen – YKY Hub"
	AppVersion = "1.0.0"
)

const healthCheckTimeout = 2 * time.Second

// Pinger はデータベースの疎通確認インターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app,omitempty"`
	Version string `json:"version,omitempty"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// データベースに接続できない場合は503を返す。
// GET /api/health
func NewHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
			return
		}

		writeJSON(w, http.StatusOK, healthResponse{
			Status:  "healthy",
			App:     AppName,
			Version: AppVersion,
		})
	}
}
