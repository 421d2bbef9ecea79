package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/rideboard/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusForCode はエラーコードからHTTPステータスコードへの対応表。
var statusForCode = map[string]int{
	model.ErrCodeRateLimited:        http.StatusTooManyRequests,
	model.ErrCodeInvalidDomain:      http.StatusForbidden,
	model.ErrCodeWeakPassword:       http.StatusBadRequest,
	model.ErrCodeMissingCredentials: http.StatusBadRequest,
	model.ErrCodeInvalidCredentials: http.StatusUnauthorized,
	model.ErrCodeEmailInUse:         http.StatusConflict,
	model.ErrCodeUnverifiedEmail:    http.StatusForbidden,
	model.ErrCodeNotAuthenticated:   http.StatusUnauthorized,
	model.ErrCodeForbidden:          http.StatusForbidden,
	model.ErrCodeQuotaExceeded:      http.StatusConflict,
	model.ErrCodeInvalidDeparture:   http.StatusBadRequest,
	model.ErrCodeInvalidField:       http.StatusBadRequest,
	model.ErrCodeRideNotFound:       http.StatusNotFound,
	model.ErrCodeInvalidToken:       http.StatusBadRequest,
	model.ErrCodeBackendUnavailable: http.StatusServiceUnavailable,
}

// StatusForAPIError はAPIErrorに対応するHTTPステータスコードを返す。
// 未知のコードは500にフォールバックする。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := statusForCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに記録し、一般的な500レスポンスを返す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := StatusForAPIError(apiErr)
		if status >= 500 {
			slog.Error("backend error", slog.String("error", apiErr.Error()))
		}
		WriteErrorResponse(w, status, apiErr)
		return
	}

	slog.Error("unexpected error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait and retry.",
	})
}
