package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/plerouge/enrollman/internal/appstate"
	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/reconcile"
	"github.com/plerouge/enrollman/internal/security"
	"github.com/plerouge/enrollman/internal/store"
)

// ReconcilerInterface は登録ハンドラーが必要とする調停サービスのインターフェース。
type ReconcilerInterface interface {
	ReconcileEnroll(ctx context.Context, userIDs []string, siteID int) (*reconcile.BatchOutcome, error)
	ReconcileUnenroll(ctx context.Context, userID string, siteID int, confirmed bool) (*reconcile.BatchOutcome, error)
}

// EnrollmentHandler は登録・解除操作のHTTPハンドラー。
type EnrollmentHandler struct {
	reconciler ReconcilerInterface
	gateway    store.Gateway
	state      *appstate.State
	sanitizer  security.TextSanitizerService
	logger     *slog.Logger
}

// NewEnrollmentHandler はEnrollmentHandlerを生成する。
func NewEnrollmentHandler(reconciler ReconcilerInterface, gateway store.Gateway, state *appstate.State, sanitizer security.TextSanitizerService, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		reconciler: reconciler,
		gateway:    gateway,
		state:      state,
		sanitizer:  sanitizer,
		logger:     logger,
	}
}

// enrollRequest は一括登録リクエストのボディ。
type enrollRequest struct {
	SiteID int `json:"site_id"`
}

// unenrollRequest は登録解除リクエストのボディ。
type unenrollRequest struct {
	UserID  string `json:"user_id"`
	SiteID  int    `json:"site_id"`
	Confirm bool   `json:"confirm"`
}

// Enroll は選択中の利用者を指定サイトに一括登録する。
//
// バッチが実行された場合、結果にかかわらず選択は解除され、
// 画面状態はストアから全面的に再読み込みされる。
// POST /api/enrollments
func (h *EnrollmentHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewNoSiteSelectedError())
		return
	}

	userIDs := h.state.Selection()

	outcome, err := h.reconciler.ReconcileEnroll(r.Context(), userIDs, req.SiteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// バッチ完了後は成功・失敗を問わず選択を解除する
	h.state.ClearSelection()

	if err := ReloadStateData(r.Context(), h.gateway, h.state, h.sanitizer); err != nil {
		h.logger.Warn("バッチ後の再読み込みに失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, reconcile.Warning{
			Code:    model.ErrCodeQueryFailed,
			Message: "Rechargement des données impossible. Actualisez la page.",
		})
	}

	writeJSON(w, http.StatusOK, outcome)
}

// Unenroll は1利用者の1サイトからの登録解除を処理する。
// confirmがfalseのリクエストは確認要求として拒否される。
// DELETE /api/enrollments
func (h *EnrollmentHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	var req unenrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewNoSiteSelectedError())
		return
	}

	outcome, err := h.reconciler.ReconcileUnenroll(r.Context(), req.UserID, req.SiteID, req.Confirm)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := ReloadStateData(r.Context(), h.gateway, h.state, h.sanitizer); err != nil {
		h.logger.Warn("解除後の再読み込みに失敗しました",
			slog.String("batch_id", outcome.BatchID),
			slog.String("error", err.Error()),
		)
		outcome.Warnings = append(outcome.Warnings, reconcile.Warning{
			Code:    model.ErrCodeQueryFailed,
			Message: "Rechargement des données impossible. Actualisez la page.",
		})
	}

	writeJSON(w, http.StatusOK, outcome)
}
