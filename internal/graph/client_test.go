package graph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plerouge/enrollman/internal/model"
)

// newTestClient はtokenエンドポイントとGraphエンドポイントを
// 同一のテストサーバーに向けたClientを生成する。
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	provider := NewOAuthProvider(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TenantID:     "tenant-id",
		RedirectURL:  "http://localhost:8080/auth/microsoft/callback",
		AuthURL:      ts.URL + "/authorize",
		TokenURL:     ts.URL + "/token",
	})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	client := NewClient(ts.Client(), logger, provider, nil)
	client.baseURL = ts.URL
	return client, ts
}

// loginTestClient はセッション確立済みのClientを返す。
func loginTestClient(t *testing.T, client *Client, token string) {
	t.Helper()
	client.mu.Lock()
	client.accessToken = token
	client.refreshToken = "refresh-token"
	client.expiresAt = time.Now().Add(time.Hour)
	client.account = &model.DirectoryAccount{Username: "admin@contoso.com", LoggedInAt: time.Now()}
	client.mu.Unlock()
}

// TestHandleCallback_EstablishesSession は認可コード交換でセッションが確立されることをテストする。
func TestHandleCallback_EstablishesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("code") != "auth-code" {
			t.Errorf("code = %q, want auth-code", r.PostForm.Get("code"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-token",
			"refresh_token": "refresh-token",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-token" {
			t.Errorf("Authorization = %q, want Bearer access-token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":                "ext-1",
			"displayName":       "Admin Contoso",
			"userPrincipalName": "admin@contoso.com",
		})
	})

	client, _ := newTestClient(t, mux)

	account, err := client.HandleCallback(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback returned error: %v", err)
	}
	if account.Username != "admin@contoso.com" {
		t.Errorf("account.Username = %q, want %q", account.Username, "admin@contoso.com")
	}
	if !client.IsLoggedIn() {
		t.Error("IsLoggedIn() = false after successful callback")
	}
}

// TestClient_NotLoggedIn は未ログイン時にAUTH_REQUIREDが返ることをテストする。
func TestClient_NotLoggedIn(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	_, err := client.Me(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeAuthRequired {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeAuthRequired)
	}
}

// TestToken_RefreshOnExpiry は期限切れ間近のトークンが更新されることをテストする。
func TestToken_RefreshOnExpiry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", r.PostForm.Get("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
			t.Errorf("Authorization = %q, want Bearer fresh-token", got)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": "ext-1"})
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "stale-token")
	client.mu.Lock()
	client.expiresAt = time.Now().Add(5 * time.Second) // 猶予30秒を下回る
	client.mu.Unlock()

	if _, err := client.Me(context.Background()); err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
}

// TestToken_RefreshFailureExpiresSession は更新失敗時にセッションが破棄され
// AUTH_EXPIREDが返ることをテストする。
func TestToken_RefreshFailureExpiresSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "stale-token")
	client.mu.Lock()
	client.expiresAt = time.Now().Add(-time.Minute)
	client.mu.Unlock()

	_, err := client.Me(context.Background())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeAuthExpired {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeAuthExpired)
	}
	if client.IsLoggedIn() {
		t.Error("IsLoggedIn() = true after failed refresh")
	}
}

// TestResolveSiteID はサイトURLがhostname:path形式に変換されることをテストする。
func TestResolveSiteID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sites/contoso.sharepoint.com:/sites/compta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "site-graph-id", "displayName": "Comptabilité"})
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "access-token")

	id, err := client.ResolveSiteID(context.Background(), "https://contoso.sharepoint.com/sites/compta/")
	if err != nil {
		t.Fatalf("ResolveSiteID returned error: %v", err)
	}
	if id != "site-graph-id" {
		t.Errorf("id = %q, want %q", id, "site-graph-id")
	}
}

// TestResolveSiteID_InvalidURL はパスのないURLが拒否されることをテストする。
func TestResolveSiteID_InvalidURL(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	loginTestClient(t, client, "access-token")

	if _, err := client.ResolveSiteID(context.Background(), "https://contoso.sharepoint.com"); err == nil {
		t.Error("expected error for URL without path")
	}
}

// TestAddMember はメンバー追加リクエストのボディと204応答の処理をテストする。
func TestAddMember(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sites/site-1/members", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if body["@odata.type"] != "#microsoft.graph.user" {
			t.Errorf("@odata.type = %v, want #microsoft.graph.user", body["@odata.type"])
		}
		if body["id"] != "ext-user-1" {
			t.Errorf("id = %v, want ext-user-1", body["id"])
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "access-token")

	if err := client.AddMember(context.Background(), "site-1", "ext-user-1"); err != nil {
		t.Fatalf("AddMember returned error: %v", err)
	}
}

// TestRemoveMember は$ref付きDELETEが送られることをテストする。
func TestRemoveMember(t *testing.T) {
	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodDelete {
			t.Errorf("method = %q, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "access-token")

	if err := client.RemoveMember(context.Background(), "site-1", "ext-user-1"); err != nil {
		t.Fatalf("RemoveMember returned error: %v", err)
	}
	want := "/sites/site-1/members/ext-user-1/$ref"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
}

// TestListSiteMembers はメンバー一覧の解析をテストする。
func TestListSiteMembers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sites/site-1/members", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"id": "ext-1", "displayName": "Marie Dupont", "mail": "marie@contoso.com"},
				{"id": "ext-2", "displayName": "Jean Martin", "mail": "jean@contoso.com"},
			},
		})
	})

	client, _ := newTestClient(t, mux)
	loginTestClient(t, client, "access-token")

	members, err := client.ListSiteMembers(context.Background(), "site-1")
	if err != nil {
		t.Fatalf("ListSiteMembers returned error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	if members[0].Email != "marie@contoso.com" {
		t.Errorf("members[0].Email = %q, want %q", members[0].Email, "marie@contoso.com")
	}
}

// TestLogout はセッションが破棄されることをテストする。
func TestLogout(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())
	loginTestClient(t, client, "access-token")

	client.Logout()

	if client.IsLoggedIn() {
		t.Error("IsLoggedIn() = true after Logout")
	}
	if client.Account() != nil {
		t.Error("Account() != nil after Logout")
	}
}
