// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/techshop/internal/middleware"
	"github.com/hitoshi/techshop/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// newInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func newInvalidRequestError() *model.APIError {
	return &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// writeJSON はステータスとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError())
		return false
	}
	return true
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteServiceError(w, err)
}

// requireUserID はコンテキストのユーザーIDを返す。未ログインなら401を書き込み空文字を返す。
func requireUserID(w http.ResponseWriter, r *http.Request) string {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewLoginRequiredError())
		return ""
	}
	return userID
}

// optionalUserID はログイン中ならユーザーIDを、そうでなければ空文字を返す。
func optionalUserID(r *http.Request) string {
	userID, _ := middleware.UserIDFromContext(r.Context())
	return userID
}

// int64Param はURLパラメータを正の整数として取り出す。不正な場合は400を書き込む。
func int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(name+"が正しくありません"))
		return 0, false
	}
	return id, true
}

// confirmed はクエリの confirm=true を判定する。
func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}
