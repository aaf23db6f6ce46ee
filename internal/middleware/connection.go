package middleware

import (
	"net/http"

	"github.com/plerouge/enrollman/internal/model"
)

// ConnectionChecker はストア接続の有無を照会する受け口。
type ConnectionChecker interface {
	IsConnected() bool
}

// NewConnectionGuardMiddleware はストア接続を前提とするエンドポイントを守る
// ミドルウェアを返す。未接続の場合は503とCONNECTION_REQUIREDを返し、
// ハンドラーには到達させない。
func NewConnectionGuardMiddleware(checker ConnectionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.IsConnected() {
				WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewConnectionRequiredError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
