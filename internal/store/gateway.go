// Package store はシステムオブレコードであるPostgreSQLストアへの
// ゲートウェイを提供する。
//
// 接続は実行時に確立・破棄できる。接続前のデータ依存操作は
// すべてErrNotConnectedで拒否され、再接続は既存の接続を
// まるごと置き換える。部分的な再利用はしない。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/plerouge/enrollman/internal/database"
	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/repository"
)

// ErrNotConnected はストア未接続時のデータ依存操作で返される。
var ErrNotConnected = errors.New("store is not connected")

// Gateway はストア接続のライフサイクルとデータ操作を提供する。
type Gateway interface {
	// Connect は接続URLとキーでストアへの接続ハンドルを確立する。
	// keyが空でない場合はURL内のパスワードをkeyで上書きする。
	// 既存の接続があれば新しい接続で置き換える。到達確認は行わない。
	Connect(ctx context.Context, rawURL, key string) error

	// TestConnection は軽量なカウントクエリで接続の有効性を確認する。
	// 結果は成否と操作者向けメッセージで返す。
	TestConnection(ctx context.Context) (bool, string)

	// Disconnect は現在の接続を閉じる。未接続の場合は何もしない。
	Disconnect() error

	// IsConnected は接続が確立済みかを返す。
	IsConnected() bool

	// ListUsersWithEnrollments はアクティブな利用者一覧を登録サイト付きで返す。
	ListUsersWithEnrollments(ctx context.Context) ([]*model.User, error)

	// ListActiveSites はアクティブなサイト一覧を返す。
	ListActiveSites(ctx context.Context) ([]*model.Site, error)

	// FindUser は指定IDの利用者を返す。見つからない場合はnilを返す。
	FindUser(ctx context.Context, id string) (*model.User, error)

	// FindSite は指定IDのサイトを返す。見つからない場合はnilを返す。
	FindSite(ctx context.Context, id int) (*model.Site, error)

	// FetchStats は統計情報を返す。3つの件数のいずれかが失敗した場合は
	// 部分的な結果を返さずエラーとする。
	FetchStats(ctx context.Context) (*model.Stats, error)

	// Enroll は利用者をサイトに登録する。
	Enroll(ctx context.Context, userID string, siteID int, enrolledBy string) error

	// Unenroll は利用者のサイト登録を解除する。
	Unenroll(ctx context.Context, userID string, siteID int, performedBy string) error
}

// gateway はGatewayの実装。
// conn以下のフィールドはmuで保護され、Connectでまとめて置き換えられる。
type gateway struct {
	mu sync.RWMutex

	db          *sql.DB
	users       repository.UserRepository
	sites       repository.SiteRepository
	enrollments repository.EnrollmentRepository
}

// NewGateway は未接続状態のGatewayを生成する。
func NewGateway() *gateway {
	return &gateway{}
}

// BuildConnURL は接続キーをURLのパスワードとして埋め込む。
// キーが空の場合はURLをそのまま返す。
func BuildConnURL(rawURL, key string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("接続URLの解析に失敗しました: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return "", fmt.Errorf("接続URLのスキームが不正です: %s", parsed.Scheme)
	}

	if key != "" {
		username := ""
		if parsed.User != nil {
			username = parsed.User.Username()
		}
		if username == "" {
			username = "postgres"
		}
		parsed.User = url.UserPassword(username, key)
	}

	return parsed.String(), nil
}

// Connect は接続URLとキーでストアへの接続ハンドルを確立する。
// ハンドルとリポジトリ一式をまるごと置き換える。到達確認は
// TestConnectionで行う。
func (g *gateway) Connect(ctx context.Context, rawURL, key string) error {
	connURL, err := BuildConnURL(rawURL, key)
	if err != nil {
		return err
	}

	db, err := database.Open(connURL)
	if err != nil {
		return fmt.Errorf("ストア接続のオープンに失敗しました: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db != nil {
		g.db.Close()
	}
	g.db = db
	g.users = repository.NewPostgresUserRepo(db)
	g.sites = repository.NewPostgresSiteRepo(db)
	g.enrollments = repository.NewPostgresEnrollmentRepo(db)

	return nil
}

// TestConnection は利用者テーブルへの軽量なカウントクエリで
// 接続の有効性を確認する。スキーマ未適用の接続も失敗として扱う。
func (g *gateway) TestConnection(ctx context.Context) (bool, string) {
	users, _, _, err := g.repos()
	if err != nil {
		return false, "Non connecté au magasin de données."
	}

	count, err := users.CountActive(ctx)
	if err != nil {
		return false, fmt.Sprintf("Échec de la vérification de connexion : %v", err)
	}
	return true, fmt.Sprintf("Connexion vérifiée (%d utilisateur(s) actif(s))", count)
}

// Disconnect は現在の接続を閉じる。
func (g *gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db == nil {
		return nil
	}

	err := g.db.Close()
	g.db = nil
	g.users = nil
	g.sites = nil
	g.enrollments = nil

	if err != nil {
		return fmt.Errorf("ストア接続のクローズに失敗しました: %w", err)
	}
	return nil
}

// IsConnected は接続が確立済みかを返す。
func (g *gateway) IsConnected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.db != nil
}

// repos は現在のリポジトリ一式を返す。未接続の場合はErrNotConnected。
func (g *gateway) repos() (repository.UserRepository, repository.SiteRepository, repository.EnrollmentRepository, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.db == nil {
		return nil, nil, nil, ErrNotConnected
	}
	return g.users, g.sites, g.enrollments, nil
}

// ListUsersWithEnrollments はアクティブな利用者一覧を登録サイト付きで返す。
func (g *gateway) ListUsersWithEnrollments(ctx context.Context) ([]*model.User, error) {
	users, _, _, err := g.repos()
	if err != nil {
		return nil, err
	}
	return users.ListWithEnrollments(ctx)
}

// ListActiveSites はアクティブなサイト一覧を返す。
func (g *gateway) ListActiveSites(ctx context.Context) ([]*model.Site, error) {
	_, sites, _, err := g.repos()
	if err != nil {
		return nil, err
	}
	return sites.ListActive(ctx)
}

// FindUser は指定IDの利用者を返す。
func (g *gateway) FindUser(ctx context.Context, id string) (*model.User, error) {
	users, _, _, err := g.repos()
	if err != nil {
		return nil, err
	}
	return users.FindByID(ctx, id)
}

// FindSite は指定IDのサイトを返す。
func (g *gateway) FindSite(ctx context.Context, id int) (*model.Site, error) {
	_, sites, _, err := g.repos()
	if err != nil {
		return nil, err
	}
	return sites.FindByID(ctx, id)
}

// FetchStats は統計情報を返す。
// 3件のカウントは独立したクエリで取得し、1つでも失敗したら全体を失敗とする。
func (g *gateway) FetchStats(ctx context.Context) (*model.Stats, error) {
	users, sites, enrollments, err := g.repos()
	if err != nil {
		return nil, err
	}

	totalUsers, err := users.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("統計情報の取得に失敗しました: %w", err)
	}
	totalEnrollments, err := enrollments.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("統計情報の取得に失敗しました: %w", err)
	}
	totalSites, err := sites.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("統計情報の取得に失敗しました: %w", err)
	}

	return &model.Stats{
		TotalUsers:       totalUsers,
		TotalEnrollments: totalEnrollments,
		TotalSites:       totalSites,
	}, nil
}

// Enroll は利用者をサイトに登録する。
func (g *gateway) Enroll(ctx context.Context, userID string, siteID int, enrolledBy string) error {
	_, _, enrollments, err := g.repos()
	if err != nil {
		return err
	}
	return enrollments.Enroll(ctx, userID, siteID, enrolledBy)
}

// Unenroll は利用者のサイト登録を解除する。
func (g *gateway) Unenroll(ctx context.Context, userID string, siteID int, performedBy string) error {
	_, _, enrollments, err := g.repos()
	if err != nil {
		return err
	}
	return enrollments.Unenroll(ctx, userID, siteID, performedBy)
}

// compile-time interface check
var _ Gateway = (*gateway)(nil)
