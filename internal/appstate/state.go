// Package appstate はダッシュボードの画面状態を保持する。
//
// 利用者・サイトのキャッシュ、チェックボックス選択、検索語を
// プロセス内メモリで管理する。選択はキャッシュとは独立した集合で、
// 検索によるリスト絞り込みでは選択は失われない。
package appstate

import (
	"strconv"
	"strings"
	"sync"

	"github.com/plerouge/enrollman/internal/model"
)

// ConnectionStatus はストア接続の表示状態。
type ConnectionStatus string

const (
	// StatusDisconnected は未接続状態。
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting は接続試行中。
	StatusConnecting ConnectionStatus = "connecting"
	// StatusConnected は接続済み。
	StatusConnected ConnectionStatus = "connected"
	// StatusError は接続試行または到達確認が失敗した状態。
	// 未接続と同様にデータ依存操作はブロックされる。
	StatusError ConnectionStatus = "error"
)

// maxVisibleSites は利用者カードに表示する登録サイト数の上限。
// 超過分は「+N autres…」として畳む。
const maxVisibleSites = 3

// UserCard は利用者一覧の1カード分の表示データ。
type UserCard struct {
	User         *model.User `json:"user"`
	VisibleSites []string    `json:"visible_sites"`
	OverflowNote string      `json:"overflow_note,omitempty"`
	Selected     bool        `json:"selected"`
}

// State はダッシュボードの画面状態。すべてのフィールドはmuで保護される。
// 選択はチェックされた順序を保持する。一括登録はこの順序で実行される。
type State struct {
	mu sync.RWMutex

	status         ConnectionStatus
	users          []*model.User
	sites          []*model.Site
	selection      map[string]bool
	selectionOrder []string
	searchTerm     string
}

// NewState は未接続状態のStateを生成する。
func NewState() *State {
	return &State{
		status:    StatusDisconnected,
		selection: make(map[string]bool),
	}
}

// Status は現在の接続表示状態を返す。
func (s *State) Status() ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus は接続表示状態を更新する。
// 切断時と接続失敗時はキャッシュと選択もまとめて破棄する。
func (s *State) SetStatus(status ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	if status == StatusDisconnected || status == StatusError {
		s.users = nil
		s.sites = nil
		s.selection = make(map[string]bool)
		s.selectionOrder = nil
		s.searchTerm = ""
	}
}

// ReplaceData は利用者・サイトのキャッシュをまるごと置き換える。
// 部分更新はしない。存在しなくなった利用者は選択からも取り除く。
func (s *State) ReplaceData(users []*model.User, sites []*model.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = users
	s.sites = sites

	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	kept := s.selectionOrder[:0]
	for _, id := range s.selectionOrder {
		if known[id] {
			kept = append(kept, id)
		} else {
			delete(s.selection, id)
		}
	}
	s.selectionOrder = kept
}

// Users はキャッシュ済みの利用者一覧を返す。
func (s *State) Users() []*model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users
}

// Sites はキャッシュ済みのサイト一覧を返す。
func (s *State) Sites() []*model.Site {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sites
}

// ToggleSelection は利用者の選択状態を反転し、反転後の状態を返す。
// 選択解除後に再度選択した場合は順序の末尾に移る。
func (s *State) ToggleSelection(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selection[userID] {
		delete(s.selection, userID)
		for i, id := range s.selectionOrder {
			if id == userID {
				s.selectionOrder = append(s.selectionOrder[:i], s.selectionOrder[i+1:]...)
				break
			}
		}
		return false
	}
	s.selection[userID] = true
	s.selectionOrder = append(s.selectionOrder, userID)
	return true
}

// ClearSelection は選択をすべて解除する。
func (s *State) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = make(map[string]bool)
	s.selectionOrder = nil
}

// Selection は選択中の利用者IDをチェックされた順序で返す。
func (s *State) Selection() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.selectionOrder))
	copy(ids, s.selectionOrder)
	return ids
}

// SelectionCount は選択中の利用者数を返す。
func (s *State) SelectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selection)
}

// SetSearchTerm は検索語を更新する。選択には影響しない。
func (s *State) SetSearchTerm(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchTerm = term
}

// SearchTerm は現在の検索語を返す。
func (s *State) SearchTerm() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchTerm
}

// FilterUsers は検索語で利用者一覧を絞り込む。
// 表示名またはメールアドレスに対する大文字小文字を区別しない
// 部分一致で、元の並び順を保つ。空の検索語は全件を返す。
func FilterUsers(users []*model.User, term string) []*model.User {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" {
		return users
	}

	needle := strings.ToLower(trimmed)
	filtered := make([]*model.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.DisplayName), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle) {
			filtered = append(filtered, u)
		}
	}
	return filtered
}

// Cards は現在の検索語で絞り込んだ利用者カード一覧を返す。
// 登録サイトは上限件数まで表示し、超過分は「+N autres…」として畳む。
func (s *State) Cards() []UserCard {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := FilterUsers(s.users, s.searchTerm)
	cards := make([]UserCard, 0, len(filtered))
	for _, u := range filtered {
		cards = append(cards, buildCard(u, s.selection[u.ID]))
	}
	return cards
}

// buildCard は1利用者分のカード表示データを組み立てる。
func buildCard(u *model.User, selected bool) UserCard {
	card := UserCard{User: u, Selected: selected}

	for i, site := range u.ActiveSites {
		if i >= maxVisibleSites {
			break
		}
		card.VisibleSites = append(card.VisibleSites, site.SiteName)
	}
	if overflow := len(u.ActiveSites) - maxVisibleSites; overflow > 0 {
		card.OverflowNote = pluralOverflow(overflow)
	}

	return card
}

// pluralOverflow は畳まれたサイト数の表示文字列を返す。
func pluralOverflow(n int) string {
	if n == 1 {
		return "+1 autre…"
	}
	return "+" + strconv.Itoa(n) + " autres…"
}
