package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/cardbinder/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// apiErrorStatus はエラーコードごとのHTTPステータス。未登録のコードは500として扱う。
var apiErrorStatus = map[string]int{
	model.ErrCodeUnauthorized:          http.StatusUnauthorized,
	model.ErrCodeInvalidToken:          http.StatusUnauthorized,
	model.ErrCodeInvalidRequest:        http.StatusBadRequest,
	model.ErrCodeValidationFailed:      http.StatusBadRequest,
	model.ErrCodeSetNotFound:           http.StatusNotFound,
	model.ErrCodeCardNotFound:          http.StatusNotFound,
	model.ErrCodeCatalogSetNotFound:    http.StatusNotFound,
	model.ErrCodeSetAlreadyTracked:     http.StatusConflict,
	model.ErrCodeRateLimited:           http.StatusTooManyRequests,
	model.ErrCodeCatalogUnavailable:    http.StatusServiceUnavailable,
	model.ErrCodeCollectionWriteFailed: http.StatusInternalServerError,
	model.ErrCodeInternal:              http.StatusInternalServerError,
}

// StatusForAPIError はAPIErrorのコードに対応するHTTPステータスコードを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := apiErrorStatus[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Error("failed to encode error response",
			slog.String("code", apiErr.Code),
			slog.String("error", err.Error()),
		)
	}
}

// WriteAPIError はコードから決まるステータスでエラーレスポンスを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteRateLimited は429レスポンスをRetry-After（秒）付きで書き込む。
func WriteRateLimited(w http.ResponseWriter, retryAfterSec int) {
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteAPIError(w, model.NewRateLimitedError())
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalError())
}
