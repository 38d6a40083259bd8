package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/techshop/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// statusByCode はAPIErrorコードとHTTPステータスの対応表。
var statusByCode = map[string]int{
	model.ErrCodeDuplicateEmail:       http.StatusConflict,
	model.ErrCodeInvalidCredentials:   http.StatusUnauthorized,
	model.ErrCodeLoginRequired:        http.StatusUnauthorized,
	model.ErrCodeCatalogUnavailable:   http.StatusServiceUnavailable,
	model.ErrCodeEmptyCart:            http.StatusConflict,
	model.ErrCodeInvalidTransition:    http.StatusConflict,
	model.ErrCodeInvalidStatus:        http.StatusBadRequest,
	model.ErrCodeConfirmationRequired: http.StatusPreconditionRequired,
	model.ErrCodeForbidden:            http.StatusForbidden,
	model.ErrCodeUserNotFound:         http.StatusNotFound,
	model.ErrCodeProductNotFound:      http.StatusNotFound,
	model.ErrCodeCategoryNotFound:     http.StatusNotFound,
	model.ErrCodeOrderNotFound:        http.StatusNotFound,
	model.ErrCodeCartItemNotFound:     http.StatusNotFound,
	model.ErrCodeValidation:           http.StatusBadRequest,
}

// StatusForCode はAPIErrorコードに対応するHTTPステータスを返す。未知のコードは400。
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusBadRequest
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

// WriteServiceError はサービス層のエラーをレスポンスに変換する。
// APIErrorはコードに応じたステータスで返し、それ以外は詳細をログに残して500を返す。
func WriteServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
