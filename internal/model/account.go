package model

import "time"

// DirectoryAccount はMicrosoft Graphに対する認証済みアカウントを表す。
// 同時に有効なアカウントは最大1つで、再ログインは既存アカウントを置き換える。
// セッションはプロセス内メモリにのみ保持され、永続化されない。
type DirectoryAccount struct {
	Username    string
	DisplayName string
	TenantID    string
	LoggedInAt  time.Time
}

// ExternalUser はMicrosoft Graphで解決された利用者を表す。
// mailが空のアカウントもあるため、識別子としてはuserPrincipalNameを優先する。
type ExternalUser struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Email             string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Username はアカウントの表示用識別子を返す。
func (u *ExternalUser) Username() string {
	if u.UserPrincipalName != "" {
		return u.UserPrincipalName
	}
	return u.Email
}
