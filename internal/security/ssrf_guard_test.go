package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSSRFGuard はSSRFGuardの生成をテストする。
func TestNewSSRFGuard(t *testing.T) {
	guard := NewSSRFGuard()
	if guard == nil {
		t.Fatal("NewSSRFGuard() returned nil")
	}
}

// TestNewSafeClient はSSRF防止付きHTTPクライアントの生成をテストする。
func TestNewSafeClient(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
}

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
// safeurlはnet.DialerのControlフックでIPアドレス検証を行うため、
// Transportが標準のhttp.DefaultTransportではないことを確認する。
func TestNewSafeClientHasTransport(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバックへのリクエストをブロックすることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateSiteURL_PublicURL は公開サイトURLの検証が成功することをテストする。
func TestValidateSiteURL_PublicURL(t *testing.T) {
	guard := NewSSRFGuard()

	publicURLs := []string{
		"https://contoso.sharepoint.com/sites/comptabilite",
		"https://contoso.sharepoint.com/sites/rh",
		"http://intranet.example.org/sites/archives",
	}

	for _, u := range publicURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateSiteURL(u); err != nil {
				t.Errorf("ValidateSiteURL(%q) = %v, want nil", u, err)
			}
		})
	}
}

// TestValidateSiteURL_Blocked は危険なURLの検証が失敗することをテストする。
func TestValidateSiteURL_Blocked(t *testing.T) {
	guard := NewSSRFGuard()

	blockedURLs := []string{
		"",
		"ftp://example.com/sites/a",
		"javascript:alert(1)",
		"https://localhost/sites/a",
		"https://127.0.0.1/sites/a",
		"https://10.1.2.3/sites/a",
		"https://169.254.169.254/latest/meta-data",
		"https://[::1]/sites/a",
	}

	for _, u := range blockedURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateSiteURL(u); err == nil {
				t.Errorf("ValidateSiteURL(%q) = nil, want error", u)
			}
		})
	}
}

// TestSSRFGuard_ImplementsInterface はインターフェース適合を検証する。
func TestSSRFGuard_ImplementsInterface(t *testing.T) {
	var _ SSRFGuardService = NewSSRFGuard()
}
