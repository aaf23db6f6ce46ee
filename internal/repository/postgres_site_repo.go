package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plerouge/enrollman/internal/model"
)

// PostgresSiteRepo はPostgreSQLを使用したサイトリポジトリ。
type PostgresSiteRepo struct {
	db *sql.DB
}

// NewPostgresSiteRepo はPostgresSiteRepoを生成する。
func NewPostgresSiteRepo(db *sql.DB) *PostgresSiteRepo {
	return &PostgresSiteRepo{db: db}
}

// ListActive はアクティブなサイト一覧をname昇順で取得する。
func (r *PostgresSiteRepo) ListActive(ctx context.Context) ([]*model.Site, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, url, is_active
		 FROM sharepoint_sites WHERE is_active
		 ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("サイト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sites []*model.Site
	for rows.Next() {
		site := &model.Site{}
		if err := rows.Scan(&site.ID, &site.Name, &site.URL, &site.IsActive); err != nil {
			return nil, fmt.Errorf("サイト行の読み取りに失敗しました: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サイト一覧の走査に失敗しました: %w", err)
	}
	return sites, nil
}

// FindByID は指定IDのサイトを取得する。見つからない場合はnilを返す。
func (r *PostgresSiteRepo) FindByID(ctx context.Context, id int) (*model.Site, error) {
	site := &model.Site{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, url, is_active FROM sharepoint_sites WHERE id = $1`,
		id,
	).Scan(&site.ID, &site.Name, &site.URL, &site.IsActive)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}

	return site, nil
}

// CountActive はアクティブなサイト数を返す。
func (r *PostgresSiteRepo) CountActive(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sharepoint_sites WHERE is_active`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("サイト数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SiteRepository = (*PostgresSiteRepo)(nil)
