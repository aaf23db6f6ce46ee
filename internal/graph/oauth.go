// Package graph はMicrosoft Graphとの連携機能を提供する。
// Microsoft identity platformによる認可コードフローと、
// サイトメンバーシップをミラーするGraph APIクライアントを含む。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// defaultScopes はGraph操作に必要なスコープ。
// offline_accessによりリフレッシュトークンが発行され、
// 対話なしのトークン更新が可能になる。
const defaultScopes = "User.Read Sites.ReadWrite.All Group.ReadWrite.All Directory.Read.All offline_access"

// OAuthConfig はMicrosoft identity platformの設定。
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// OAuthProvider はMicrosoft identity platformによる認可コードフローを提供する。
type OAuthProvider struct {
	config OAuthConfig
}

// NewOAuthProvider はOAuthProviderを生成する。
// エンドポイントが未指定の場合はテナント固有のエンドポイントを構築する。
func NewOAuthProvider(config OAuthConfig) *OAuthProvider {
	base := "https://login.microsoftonline.com/" + config.TenantID + "/oauth2/v2.0"
	if config.AuthURL == "" {
		config.AuthURL = base + "/authorize"
	}
	if config.TokenURL == "" {
		config.TokenURL = base + "/token"
	}
	return &OAuthProvider{config: config}
}

// GetLoginURL はMicrosoftの認証URLを生成する。
func (p *OAuthProvider) GetLoginURL(state string) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURL},
		"response_type": {"code"},
		"response_mode": {"query"},
		"scope":         {defaultScopes},
		"state":         {state},
	}
	return p.config.AuthURL + "?" + params.Encode()
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// ExchangeCode は認可コードをアクセストークンに交換する。
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*tokenResponse, error) {
	data := url.Values{
		"code":          {code},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"redirect_uri":  {p.config.RedirectURL},
		"grant_type":    {"authorization_code"},
		"scope":         {defaultScopes},
	}
	return p.requestToken(ctx, data)
}

// RefreshToken はリフレッシュトークンで新しいアクセストークンを取得する。
// MSALのサイレント取得に相当する。
func (p *OAuthProvider) RefreshToken(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	data := url.Values{
		"refresh_token": {refreshToken},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"grant_type":    {"refresh_token"},
		"scope":         {defaultScopes},
	}
	return p.requestToken(ctx, data)
}

// requestToken はトークンエンドポイントを呼び出してレスポンスを解析する。
func (p *OAuthProvider) requestToken(ctx context.Context, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	return &tokenResp, nil
}
