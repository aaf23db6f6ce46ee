package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/plerouge/enrollman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用した利用者リポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// ListWithEnrollments はアクティブな利用者一覧をアクティブな登録サイト付きで取得する。
// active_sitesはビュー側でjsonb配列（site_name昇順）に集約済み。
func (r *PostgresUserRepo) ListWithEnrollments(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, display_name, email, created_at, active_sites
		 FROM user_enrollments_view
		 ORDER BY display_name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var sitesJSON []byte
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt, &sitesJSON); err != nil {
			return nil, fmt.Errorf("利用者行の読み取りに失敗しました: %w", err)
		}
		if err := json.Unmarshal(sitesJSON, &user.ActiveSites); err != nil {
			return nil, fmt.Errorf("登録サイトの解析に失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("利用者一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var sitesJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, display_name, email, created_at, active_sites
		 FROM user_enrollments_view WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.DisplayName, &user.Email, &user.CreatedAt, &sitesJSON)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if err := json.Unmarshal(sitesJSON, &user.ActiveSites); err != nil {
		return nil, fmt.Errorf("登録サイトの解析に失敗しました: %w", err)
	}

	return user, nil
}

// CountActive はアクティブな利用者数を返す。
func (r *PostgresUserRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE is_active`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("利用者数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
