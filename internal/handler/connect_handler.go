package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/plerouge/enrollman/internal/appstate"
	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/security"
	"github.com/plerouge/enrollman/internal/store"
)

// DirectoryStatus は接続状態レスポンスに含めるMicrosoftセッション情報の照会口。
type DirectoryStatus interface {
	IsLoggedIn() bool
	Account() *model.DirectoryAccount
}

// ConnectHandler はストア接続管理のHTTPハンドラー。
type ConnectHandler struct {
	gateway   store.Gateway
	state     *appstate.State
	directory DirectoryStatus
	sanitizer security.TextSanitizerService
	logger    *slog.Logger
}

// NewConnectHandler はConnectHandlerを生成する。
func NewConnectHandler(gateway store.Gateway, state *appstate.State, directory DirectoryStatus, sanitizer security.TextSanitizerService, logger *slog.Logger) *ConnectHandler {
	return &ConnectHandler{
		gateway:   gateway,
		state:     state,
		directory: directory,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// connectRequest は接続リクエストのボディ。
type connectRequest struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// connectionResponse は接続状態のAPIレスポンス。
type connectionResponse struct {
	Status    appstate.ConnectionStatus `json:"status"`
	Microsoft microsoftStatus           `json:"microsoft"`
}

// microsoftStatus はMicrosoftセッションの表示状態。
type microsoftStatus struct {
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// buildConnectionResponse は現在の接続状態レスポンスを組み立てる。
func (h *ConnectHandler) buildConnectionResponse() connectionResponse {
	resp := connectionResponse{Status: h.state.Status()}
	if account := h.directory.Account(); account != nil {
		resp.Microsoft = microsoftStatus{
			LoggedIn: true,
			Username: account.Username,
			Name:     account.DisplayName,
		}
	}
	return resp
}

// reloadStateData はストアから利用者・サイトを取得し直し、
// 画面状態のキャッシュをまるごと置き換える。
// 外部由来の表示文字列はここでサニタイズする。
func (h *ConnectHandler) reloadStateData(ctx context.Context) error {
	return ReloadStateData(ctx, h.gateway, h.state, h.sanitizer)
}

// ReloadStateData はストアの利用者・サイト一覧で画面状態を全面更新する。
// 部分更新はせず、取得に失敗した場合はキャッシュを変更しない。
func ReloadStateData(ctx context.Context, gateway store.Gateway, state *appstate.State, sanitizer security.TextSanitizerService) error {
	users, err := gateway.ListUsersWithEnrollments(ctx)
	if err != nil {
		return err
	}
	sites, err := gateway.ListActiveSites(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		u.DisplayName = sanitizer.SanitizeText(u.DisplayName)
		u.Email = sanitizer.SanitizeText(u.Email)
		for i := range u.ActiveSites {
			u.ActiveSites[i].SiteName = sanitizer.SanitizeText(u.ActiveSites[i].SiteName)
		}
	}
	for _, s := range sites {
		s.Name = sanitizer.SanitizeText(s.Name)
	}

	state.ReplaceData(users, sites)
	return nil
}

// Connect はストアへの接続を処理する。
// POST /api/connect
func (h *ConnectHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingInputError())
		return
	}
	if req.URL == "" || req.Key == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewMissingInputError())
		return
	}

	h.state.SetStatus(appstate.StatusConnecting)

	if err := h.gateway.Connect(r.Context(), req.URL, req.Key); err != nil {
		h.state.SetStatus(appstate.StatusError)
		h.logger.Warn("ストア接続に失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewConnectionFailedError("vérifiez vos identifiants"))
		return
	}

	if ok, message := h.gateway.TestConnection(r.Context()); !ok {
		h.gateway.Disconnect()
		h.state.SetStatus(appstate.StatusError)
		h.logger.Warn("ストアへの到達確認に失敗しました", slog.String("message", message))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewConnectionFailedError(message))
		return
	}

	if err := h.reloadStateData(r.Context()); err != nil {
		// 接続はできたがデータ取得に失敗。接続ごと破棄する。
		h.gateway.Disconnect()
		h.state.SetStatus(appstate.StatusError)
		h.logger.Error("初回データ取得に失敗しました", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewQueryFailedError("chargement initial impossible"))
		return
	}

	h.state.SetStatus(appstate.StatusConnected)
	h.logger.Info("ストアに接続しました")

	writeJSON(w, http.StatusOK, h.buildConnectionResponse())
}

// Disconnect はストア接続を切断する。
// POST /api/disconnect
func (h *ConnectHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.gateway.Disconnect(); err != nil {
		h.logger.Warn("切断処理でエラーが発生しました", slog.String("error", err.Error()))
	}
	h.state.SetStatus(appstate.StatusDisconnected)
	h.logger.Info("ストアから切断しました")

	writeJSON(w, http.StatusOK, h.buildConnectionResponse())
}

// Connection は現在の接続状態を返す。
// GET /api/connection
func (h *ConnectHandler) Connection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.buildConnectionResponse())
}
