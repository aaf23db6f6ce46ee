// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（UI表示用・フランス語）
	Category string // カテゴリ: validation, connection, enrollment, directory, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingInput         = "VALIDATION_MISSING_INPUT"
	ErrCodeNoSiteSelected       = "VALIDATION_NO_SITE"
	ErrCodeEmptySelection       = "VALIDATION_EMPTY_SELECTION"
	ErrCodeConnectionRequired   = "CONNECTION_REQUIRED"
	ErrCodeConnectionFailed     = "CONNECTION_FAILED"
	ErrCodeQueryFailed          = "QUERY_FAILED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeSiteNotFound         = "SITE_NOT_FOUND"
	ErrCodeEnrollFailed         = "ENROLL_FAILED"
	ErrCodeUnenrollFailed       = "UNENROLL_FAILED"
	ErrCodeMirrorFailed         = "MIRROR_FAILED"
	ErrCodeAuthRequired         = "AUTH_REQUIRED"
	ErrCodeAuthExpired          = "AUTH_EXPIRED"
	ErrCodeAuthFailed           = "AUTH_FAILED"
	ErrCodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// NewMissingInputError は接続フォームの入力不足エラーを生成する。
func NewMissingInputError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingInput,
		Message:  "Veuillez renseigner URL et clé de connexion.",
		Category: "validation",
		Action:   "Remplissez les deux champs du formulaire de connexion.",
	}
}

// NewNoSiteSelectedError はサイト未選択エラーを生成する。
func NewNoSiteSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSiteSelected,
		Message:  "Sélectionnez un site et des utilisateurs.",
		Category: "validation",
		Action:   "Choisissez un site dans la liste déroulante.",
	}
}

// NewEmptySelectionError は利用者未選択エラーを生成する。
func NewEmptySelectionError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptySelection,
		Message:  "Sélectionnez un site et des utilisateurs.",
		Category: "validation",
		Action:   "Cochez au moins un utilisateur avant d'inscrire.",
	}
}

// NewConnectionRequiredError はストア未接続エラーを生成する。
// 接続前のデータ依存操作はすべてこのエラーでブロックされる。
func NewConnectionRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectionRequired,
		Message:  "La base de données n'est pas connectée.",
		Category: "connection",
		Action:   "Connectez-vous via le formulaire de connexion.",
	}
}

// NewConnectionFailedError は接続確認失敗エラーを生成する。
func NewConnectionFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeConnectionFailed,
		Message:  fmt.Sprintf("Erreur de connexion: %s", reason),
		Category: "connection",
		Action:   "Vérifiez l'URL et la clé, puis réessayez.",
	}
}

// NewQueryFailedError はデータ取得失敗エラーを生成する。
func NewQueryFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeQueryFailed,
		Message:  fmt.Sprintf("Erreur lors du chargement des données: %s", reason),
		Category: "connection",
		Action:   "Vérifiez la connexion et réessayez.",
	}
}

// NewUserNotFoundError は利用者未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("Utilisateur introuvable: %s", userID),
		Category: "enrollment",
		Action:   "Rechargez les données et réessayez.",
	}
}

// NewSiteNotFoundError はサイト未検出エラーを生成する。
func NewSiteNotFoundError(siteID int) *APIError {
	return &APIError{
		Code:     ErrCodeSiteNotFound,
		Message:  fmt.Sprintf("Site introuvable: %d", siteID),
		Category: "enrollment",
		Action:   "Rechargez la liste des sites et réessayez.",
	}
}

// NewAuthRequiredError はMicrosoft未ログインエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "Aucun compte Microsoft connecté.",
		Category: "directory",
		Action:   "Connectez-vous à Microsoft avant cette opération.",
	}
}

// NewAuthExpiredError はトークン更新失敗エラーを生成する。
// サイレント取得に失敗した場合は対話的な再ログインが必要になる。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "La session Microsoft a expiré.",
		Category: "directory",
		Action:   "Reconnectez-vous à Microsoft.",
	}
}

// NewAuthFailedError はMicrosoftログイン失敗エラーを生成する。
func NewAuthFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  fmt.Sprintf("Erreur connexion Microsoft: %s", reason),
		Category: "directory",
		Action:   "Réessayez la connexion Microsoft.",
	}
}

// NewConfirmationRequiredError は確認未済の désinscription エラーを生成する。
// 確認なしではゲートウェイ呼び出しを一切行わない。
func NewConfirmationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeConfirmationRequired,
		Message:  "Voulez-vous vraiment désinscrire cet apprenant de ce site ?",
		Category: "validation",
		Action:   "Confirmez la désinscription pour continuer.",
	}
}
