// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/plerouge/enrollman/internal/model"
)

// UserRepository は利用者データの永続化インターフェース。
type UserRepository interface {
	// ListWithEnrollments はアクティブな利用者一覧をアクティブな登録サイト付きで取得する。
	// user_enrollments_viewを読み、display_name昇順で返す。
	ListWithEnrollments(ctx context.Context) ([]*model.User, error)

	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CountActive はアクティブな利用者数を返す。
	CountActive(ctx context.Context) (int, error)
}

// SiteRepository はSharePointサイトデータの永続化インターフェース。
type SiteRepository interface {
	// ListActive はアクティブなサイト一覧をname昇順で取得する。
	ListActive(ctx context.Context) ([]*model.Site, error)

	// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Site, error)

	// CountActive はアクティブなサイト数を返す。
	CountActive(ctx context.Context) (int, error)
}

// EnrollmentRepository は登録データの永続化インターフェース。
// 書き込みはすべてデータベース側のストアドファンクション経由で行う。
type EnrollmentRepository interface {
	// Enroll は利用者をサイトに登録する。既存の非アクティブ登録は再アクティブ化される。
	// データベース関数がsuccess=falseを返した場合はそのメッセージをエラーとして返す。
	Enroll(ctx context.Context, userID string, siteID int, enrolledBy string) error

	// Unenroll は利用者のサイト登録を解除する。行は履歴として残る。
	// アクティブな登録が存在しない場合はエラーを返す。
	Unenroll(ctx context.Context, userID string, siteID int, performedBy string) error

	// CountActive はアクティブな登録数を返す。
	CountActive(ctx context.Context) (int, error)
}
