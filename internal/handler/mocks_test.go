package handler

import (
	"context"

	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/reconcile"
	"github.com/plerouge/enrollman/internal/store"
)

// --- モック定義 ---

type mockGateway struct {
	connectFn        func(ctx context.Context, rawURL, key string) error
	testConnectionFn func(ctx context.Context) (bool, string)
	disconnectFn     func() error
	connected        bool

	listUsersFn  func(ctx context.Context) ([]*model.User, error)
	listSitesFn  func(ctx context.Context) ([]*model.Site, error)
	findUserFn   func(ctx context.Context, id string) (*model.User, error)
	findSiteFn   func(ctx context.Context, id int) (*model.Site, error)
	fetchStatsFn func(ctx context.Context) (*model.Stats, error)
	enrollFn     func(ctx context.Context, userID string, siteID int, enrolledBy string) error
	unenrollFn   func(ctx context.Context, userID string, siteID int, performedBy string) error

	disconnectCalls int
}

var _ store.Gateway = (*mockGateway)(nil)

func (m *mockGateway) Connect(ctx context.Context, rawURL, key string) error {
	if m.connectFn != nil {
		return m.connectFn(ctx, rawURL, key)
	}
	m.connected = true
	return nil
}

func (m *mockGateway) TestConnection(ctx context.Context) (bool, string) {
	if m.testConnectionFn != nil {
		return m.testConnectionFn(ctx)
	}
	return true, "Connexion vérifiée"
}

func (m *mockGateway) Disconnect() error {
	m.disconnectCalls++
	m.connected = false
	if m.disconnectFn != nil {
		return m.disconnectFn()
	}
	return nil
}

func (m *mockGateway) IsConnected() bool {
	return m.connected
}

func (m *mockGateway) ListUsersWithEnrollments(ctx context.Context) ([]*model.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return []*model.User{}, nil
}

func (m *mockGateway) ListActiveSites(ctx context.Context) ([]*model.Site, error) {
	if m.listSitesFn != nil {
		return m.listSitesFn(ctx)
	}
	return []*model.Site{}, nil
}

func (m *mockGateway) FindUser(ctx context.Context, id string) (*model.User, error) {
	if m.findUserFn != nil {
		return m.findUserFn(ctx, id)
	}
	return nil, nil
}

func (m *mockGateway) FindSite(ctx context.Context, id int) (*model.Site, error) {
	if m.findSiteFn != nil {
		return m.findSiteFn(ctx, id)
	}
	return nil, nil
}

func (m *mockGateway) FetchStats(ctx context.Context) (*model.Stats, error) {
	if m.fetchStatsFn != nil {
		return m.fetchStatsFn(ctx)
	}
	return &model.Stats{}, nil
}

func (m *mockGateway) Enroll(ctx context.Context, userID string, siteID int, enrolledBy string) error {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, userID, siteID, enrolledBy)
	}
	return nil
}

func (m *mockGateway) Unenroll(ctx context.Context, userID string, siteID int, performedBy string) error {
	if m.unenrollFn != nil {
		return m.unenrollFn(ctx, userID, siteID, performedBy)
	}
	return nil
}

type mockDirectory struct {
	loginURLFn       func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.DirectoryAccount, error)
	account          *model.DirectoryAccount

	logoutCalls int
}

var _ DirectoryAuthInterface = (*mockDirectory)(nil)

func (m *mockDirectory) LoginURL(state string) string {
	if m.loginURLFn != nil {
		return m.loginURLFn(state)
	}
	return "https://login.microsoftonline.com/common/oauth2/v2.0/authorize?state=" + state
}

func (m *mockDirectory) HandleCallback(ctx context.Context, code string) (*model.DirectoryAccount, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return &model.DirectoryAccount{Username: "admin@contoso.com"}, nil
}

func (m *mockDirectory) Logout() {
	m.logoutCalls++
	m.account = nil
}

func (m *mockDirectory) IsLoggedIn() bool {
	return m.account != nil
}

func (m *mockDirectory) Account() *model.DirectoryAccount {
	return m.account
}

type mockReconciler struct {
	enrollFn   func(ctx context.Context, userIDs []string, siteID int) (*reconcile.BatchOutcome, error)
	unenrollFn func(ctx context.Context, userID string, siteID int, confirmed bool) (*reconcile.BatchOutcome, error)
}

var _ ReconcilerInterface = (*mockReconciler)(nil)

func (m *mockReconciler) ReconcileEnroll(ctx context.Context, userIDs []string, siteID int) (*reconcile.BatchOutcome, error) {
	if m.enrollFn != nil {
		return m.enrollFn(ctx, userIDs, siteID)
	}
	return &reconcile.BatchOutcome{}, nil
}

func (m *mockReconciler) ReconcileUnenroll(ctx context.Context, userID string, siteID int, confirmed bool) (*reconcile.BatchOutcome, error) {
	if m.unenrollFn != nil {
		return m.unenrollFn(ctx, userID, siteID, confirmed)
	}
	return &reconcile.BatchOutcome{}, nil
}
