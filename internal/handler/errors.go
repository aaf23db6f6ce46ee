// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/plerouge/enrollman/internal/middleware"
	"github.com/plerouge/enrollman/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はエラーコードをHTTPステータスコードに対応付ける。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingInput, model.ErrCodeNoSiteSelected, model.ErrCodeEmptySelection:
		return http.StatusBadRequest
	case model.ErrCodeConfirmationRequired:
		return http.StatusConflict
	case model.ErrCodeConnectionRequired:
		return http.StatusServiceUnavailable
	case model.ErrCodeConnectionFailed:
		return http.StatusBadGateway
	case model.ErrCodeQueryFailed:
		return http.StatusBadGateway
	case model.ErrCodeUserNotFound, model.ErrCodeSiteNotFound:
		return http.StatusNotFound
	case model.ErrCodeEnrollFailed, model.ErrCodeUnenrollFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeAuthRequired, model.ErrCodeAuthExpired:
		return http.StatusUnauthorized
	case model.ErrCodeAuthFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
