package middleware

import (
	"encoding/json"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ethergreen/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの共通形式。
// code/message/category/actionは常に含み、request_idは判明している場合のみ含む。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// newErrorResponseBody はAPIErrorからレスポンスボディを組み立てる。
func newErrorResponseBody(apiErr *model.APIError, requestID string) ErrorResponseBody {
	return ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: requestID,
	}
}

// WriteErrorResponse はAPIErrorをJSONで書き込む。
// ロギングミドルウェアがX-Request-Idを付けていれば、同じIDをボディにも入れる。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := newErrorResponseBody(apiErr, w.Header().Get(chimw.RequestIDHeader))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。原因はログ側で記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
