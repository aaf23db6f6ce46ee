package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresEnrollmentRepo はPostgreSQLを使用した登録リポジトリ。
// 登録・解除の書き込みはストアドファンクション経由で行い、
// 存在チェックと冪等性の判断はデータベース側に委ねる。
type PostgresEnrollmentRepo struct {
	db *sql.DB
}

// NewPostgresEnrollmentRepo はPostgresEnrollmentRepoを生成する。
func NewPostgresEnrollmentRepo(db *sql.DB) *PostgresEnrollmentRepo {
	return &PostgresEnrollmentRepo{db: db}
}

// procResult はストアドファンクションが返すjsonbペイロード。
type procResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// callProc は登録系ファンクションを呼び出し、結果ペイロードを解析する。
func (r *PostgresEnrollmentRepo) callProc(ctx context.Context, query string, args ...any) error {
	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		return fmt.Errorf("登録ファンクションの呼び出しに失敗しました: %w", err)
	}

	var result procResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("登録ファンクションの結果の解析に失敗しました: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("登録ファンクションがエラーを返しました: %s", result.Message)
	}
	return nil
}

// Enroll は利用者をサイトに登録する。
func (r *PostgresEnrollmentRepo) Enroll(ctx context.Context, userID string, siteID int, enrolledBy string) error {
	return r.callProc(ctx,
		`SELECT enroll_user_to_site($1, $2, $3)`,
		userID, siteID, enrolledBy,
	)
}

// Unenroll は利用者のサイト登録を解除する。
func (r *PostgresEnrollmentRepo) Unenroll(ctx context.Context, userID string, siteID int, performedBy string) error {
	return r.callProc(ctx,
		`SELECT unenroll_user_from_site($1, $2, $3)`,
		userID, siteID, performedBy,
	)
}

// CountActive はアクティブな登録数を返す。
func (r *PostgresEnrollmentRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_site_enrollments WHERE status = 'active'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("登録数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ EnrollmentRepository = (*PostgresEnrollmentRepo)(nil)
