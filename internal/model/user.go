// Package model はドメインモデルを定義する。
package model

import "time"

// User は管理対象の利用者（apprenant）を表す。
// ActiveSites はストア側のビューで非正規化された有効な登録の射影であり、
// 登録数は常に len(ActiveSites) から導出する（独立したカウンタは持たない）。
type User struct {
	ID          string
	DisplayName string
	Email       string
	CreatedAt   time.Time
	ActiveSites []ActiveSite
}

// EnrollmentCount は利用者の有効な登録数を返す。
func (u *User) EnrollmentCount() int {
	return len(u.ActiveSites)
}

// ActiveSite は利用者に紐付く有効な登録先サイトの射影を表す。
// Enrollment 本体はストアの結合テーブルにのみ存在し、UIはこの射影だけを扱う。
type ActiveSite struct {
	SiteID   int    `json:"site_id"`
	SiteName string `json:"site_name"`
}

// Site はプロビジョニング済みのSharePointサイトを表す。
type Site struct {
	ID       int
	Name     string
	URL      string
	IsActive bool
}

// Stats はダッシュボード先頭に表示する集計値を表す。
// 3つのカウントは独立したクエリで取得され、1つでも失敗すれば全体が失敗する。
type Stats struct {
	TotalUsers       int
	TotalEnrollments int
	TotalSites       int
}
