package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plerouge/enrollman/internal/model"
)

// defaultBaseURL はMicrosoft Graph v1.0のベースURL。
const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// tokenLeeway はトークン更新を開始する有効期限までの猶予。
// 残りがこの猶予を下回ったらリフレッシュトークンで更新する。
const tokenLeeway = 30 * time.Second

// Directory はMicrosoft Graphに対するディレクトリ操作のインターフェース。
// ミラー書き込みとディレクトリ照会で使用される。
type Directory interface {
	// IsLoggedIn はアクティブなMicrosoftセッションが存在するかを返す。
	IsLoggedIn() bool

	// Account は現在のアカウント情報を返す。未ログインの場合はnilを返す。
	Account() *model.DirectoryAccount

	// ResolveSiteID はサイトURLからGraphのサイトIDを解決する。
	// 解決結果はキャッシュせず、毎回Graphに問い合わせる。
	ResolveSiteID(ctx context.Context, siteURL string) (string, error)

	// ResolveUserByEmail はメールアドレスからディレクトリ上の利用者を解決する。
	ResolveUserByEmail(ctx context.Context, email string) (*model.ExternalUser, error)

	// AddMember はサイトのメンバーに利用者を追加する。
	AddMember(ctx context.Context, siteID, externalUserID string) error

	// RemoveMember はサイトのメンバーから利用者を削除する。
	RemoveMember(ctx context.Context, siteID, externalUserID string) error

	// ListSiteMembers はサイトの現在のメンバー一覧を返す。
	ListSiteMembers(ctx context.Context, siteID string) ([]model.ExternalUser, error)

	// Me はログイン中のアカウント自身のプロフィールを返す。
	Me(ctx context.Context) (*model.ExternalUser, error)
}

// RequestObserver はGraphリクエストの計測フック。
type RequestObserver interface {
	// ObserveGraphRequest は1リクエストの操作名、HTTPステータス、所要時間を記録する。
	ObserveGraphRequest(operation string, status int, duration time.Duration)
}

// Client はMicrosoft GraphのHTTPクライアント。
// プロセス内に最大1つのログインセッションを保持する。
// トークンとアカウント情報はmuで保護され、永続化されない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	provider   *OAuthProvider
	observer   RequestObserver
	baseURL    string // テスト用にエンドポイントを差し替え可能

	mu           sync.Mutex
	account      *model.DirectoryAccount
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
// observerはnilでもよい。
func NewClient(httpClient *http.Client, logger *slog.Logger, provider *OAuthProvider, observer RequestObserver) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		provider:   provider,
		observer:   observer,
		baseURL:    defaultBaseURL,
	}
}

// LoginURL はMicrosoftの認証URLを生成する。
func (c *Client) LoginURL(state string) string {
	return c.provider.GetLoginURL(state)
}

// HandleCallback は認可コードをトークンに交換し、ログインセッションを確立する。
// 既存のセッションがあれば新しいアカウントで置き換える。
func (c *Client) HandleCallback(ctx context.Context, code string) (*model.DirectoryAccount, error) {
	tokenResp, err := c.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, model.NewAuthFailedError(err.Error())
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	c.refreshToken = tokenResp.RefreshToken
	c.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	c.mu.Unlock()

	// アカウント情報は/meから取得する
	me, err := c.Me(ctx)
	if err != nil {
		c.Logout()
		return nil, model.NewAuthFailedError("profil Microsoft inaccessible")
	}

	account := &model.DirectoryAccount{
		Username:    me.Username(),
		DisplayName: me.DisplayName,
		TenantID:    c.provider.config.TenantID,
		LoggedInAt:  time.Now(),
	}

	c.mu.Lock()
	c.account = account
	c.mu.Unlock()

	c.logger.Info("Microsoftログインが完了しました",
		slog.String("username", account.Username),
	)

	return account, nil
}

// Logout はログインセッションを破棄する。未ログインの場合は何もしない。
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.account = nil
	c.accessToken = ""
	c.refreshToken = ""
	c.expiresAt = time.Time{}
}

// IsLoggedIn はアクティブなMicrosoftセッションが存在するかを返す。
func (c *Client) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account != nil
}

// Account は現在のアカウント情報を返す。未ログインの場合はnilを返す。
func (c *Client) Account() *model.DirectoryAccount {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.account == nil {
		return nil
	}
	copied := *c.account
	return &copied
}

// token は有効なアクセストークンを返す。
// 有効期限まで猶予があればキャッシュ済みトークンをそのまま使い、
// 足りなければリフレッシュトークンで更新する。
// 更新に失敗した場合はセッションを破棄してAUTH_EXPIREDを返す。
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()

	if c.accessToken == "" {
		c.mu.Unlock()
		return "", model.NewAuthRequiredError()
	}
	if time.Until(c.expiresAt) > tokenLeeway {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}

	refreshToken := c.refreshToken
	c.mu.Unlock()

	if refreshToken == "" {
		c.Logout()
		return "", model.NewAuthExpiredError()
	}

	tokenResp, err := c.provider.RefreshToken(ctx, refreshToken)
	if err != nil {
		c.logger.Warn("トークンの更新に失敗しました", slog.String("error", err.Error()))
		c.Logout()
		return "", model.NewAuthExpiredError()
	}

	c.mu.Lock()
	c.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		c.refreshToken = tokenResp.RefreshToken
	}
	c.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	token := c.accessToken
	c.mu.Unlock()

	return token, nil
}

// doJSON は認証付きでGraph APIを呼び出し、レスポンスボディを返す。
// outがnilでない場合はJSONとしてデコードする。
func (c *Client) doJSON(ctx context.Context, operation, method, path string, reqBody, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(operation, 0, time.Since(start))
		c.logger.Error("Graph APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("Graph APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	c.observe(operation, resp.StatusCode, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Graph APIがエラーステータスを返しました",
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("Graph APIがステータス %d を返しました: %s", resp.StatusCode, truncateBody(body))
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}

	return nil
}

// observe は計測フックが設定されていれば記録する。
func (c *Client) observe(operation string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer.ObserveGraphRequest(operation, status, duration)
	}
}

// truncateBody はログ・エラーメッセージ用にボディを切り詰める。
func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}

// graphSite はサイト解決エンドポイントのレスポンス。
type graphSite struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// memberRequest はメンバー追加エンドポイントのリクエストボディ。
type memberRequest struct {
	ODataType string   `json:"@odata.type"`
	ID        string   `json:"id"`
	Roles     []string `json:"roles"`
}

// memberList はメンバー一覧エンドポイントのレスポンス。
type memberList struct {
	Value []model.ExternalUser `json:"value"`
}

// ResolveSiteID はサイトURLからGraphのサイトIDを解決する。
// URLを「/sites/{hostname}:{server-relative-path}」形式に変換して照会する。
func (c *Client) ResolveSiteID(ctx context.Context, siteURL string) (string, error) {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("サイトURLの解析に失敗しました: %w", err)
	}
	hostname := parsed.Hostname()
	path := strings.TrimSuffix(parsed.Path, "/")
	if hostname == "" || path == "" {
		return "", fmt.Errorf("サイトURLにホスト名またはパスがありません: %s", siteURL)
	}

	var site graphSite
	if err := c.doJSON(ctx, "resolve_site", http.MethodGet, "/sites/"+hostname+":"+path, nil, &site); err != nil {
		return "", err
	}
	if site.ID == "" {
		return "", fmt.Errorf("サイトIDの解決結果が空です: %s", siteURL)
	}

	return site.ID, nil
}

// ResolveUserByEmail はメールアドレスからディレクトリ上の利用者を解決する。
func (c *Client) ResolveUserByEmail(ctx context.Context, email string) (*model.ExternalUser, error) {
	var user model.ExternalUser
	if err := c.doJSON(ctx, "resolve_user", http.MethodGet, "/users/"+url.PathEscape(email), nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("ディレクトリ利用者の解決結果が空です: %s", email)
	}
	return &user, nil
}

// AddMember はサイトのメンバーに利用者を追加する。
// Graphは成功時に204または201を返す。
func (c *Client) AddMember(ctx context.Context, siteID, externalUserID string) error {
	body := memberRequest{
		ODataType: "#microsoft.graph.user",
		ID:        externalUserID,
		Roles:     []string{"member"},
	}
	return c.doJSON(ctx, "add_member", http.MethodPost, "/sites/"+siteID+"/members", body, nil)
}

// RemoveMember はサイトのメンバーから利用者を削除する。
func (c *Client) RemoveMember(ctx context.Context, siteID, externalUserID string) error {
	return c.doJSON(ctx, "remove_member", http.MethodDelete, "/sites/"+siteID+"/members/"+externalUserID+"/$ref", nil, nil)
}

// ListSiteMembers はサイトの現在のメンバー一覧を返す。
func (c *Client) ListSiteMembers(ctx context.Context, siteID string) ([]model.ExternalUser, error) {
	var list memberList
	if err := c.doJSON(ctx, "list_members", http.MethodGet, "/sites/"+siteID+"/members", nil, &list); err != nil {
		return nil, err
	}
	return list.Value, nil
}

// Me はログイン中のアカウント自身のプロフィールを返す。
func (c *Client) Me(ctx context.Context) (*model.ExternalUser, error) {
	var me model.ExternalUser
	if err := c.doJSON(ctx, "me", http.MethodGet, "/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// compile-time interface check
var _ Directory = (*Client)(nil)
