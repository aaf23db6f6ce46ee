// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はストアやGraphから取得した表示名・サイト名・
// メールアドレスなどの文字列をサニタイズし、管理画面に返す前に
// HTMLタグを除去してXSSを防止する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は表示用文字列のサニタイズ機能のインターフェースを定義する。
// API応答に含まれる外部由来の文字列はすべてこのサービスを通す。
type TextSanitizerService interface {
	// SanitizeText は文字列からすべてのHTMLタグを除去して返す。
	// 表示名やサイト名はプレーンテキストとして扱うため、許可タグは存在しない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyはすべてのタグと属性を除去し、テキストのみを通過させる。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は文字列からすべてのHTMLタグを除去して返す。
// タグ除去後の前後空白も取り除く。
func (s *textSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
