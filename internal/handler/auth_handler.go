package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/plerouge/enrollman/internal/model"
)

const oauthStateCookie = "oauth_state"

// DirectoryAuthInterface は認証ハンドラーが必要とするGraphクライアントのインターフェース。
type DirectoryAuthInterface interface {
	LoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.DirectoryAccount, error)
	Logout()
	IsLoggedIn() bool
	Account() *model.DirectoryAccount
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL      string
	CookieSecure bool
}

// AuthHandler はMicrosoft認証関連のHTTPハンドラー。
type AuthHandler struct {
	directory DirectoryAuthInterface
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(directory DirectoryAuthInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		directory: directory,
		config:    config,
	}
}

// Login はMicrosoft認証フローを開始する。
// GET /auth/microsoft/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.directory.LoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はMicrosoftの認可コールバックを処理する。
// GET /auth/microsoft/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. トークン交換とセッション確立
	account, err := h.directory.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	slog.Info("microsoft login completed", slog.String("username", account.Username))

	// 4. ダッシュボードにリダイレクト
	http.Redirect(w, r, h.config.BaseURL, http.StatusTemporaryRedirect)
}

// Logout はMicrosoftセッションを破棄する。
// POST /auth/microsoft/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.directory.Logout()
	writeJSON(w, http.StatusOK, map[string]bool{"logged_in": false})
}

// Me は現在のMicrosoftアカウント情報を返す。
// GET /auth/microsoft/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := h.directory.Account()
	if account == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":     account.Username,
		"name":         account.DisplayName,
		"tenant_id":    account.TenantID,
		"logged_in_at": account.LoggedInAt,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
