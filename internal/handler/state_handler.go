package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plerouge/enrollman/internal/appstate"
	"github.com/plerouge/enrollman/internal/model"
	"github.com/plerouge/enrollman/internal/store"
)

// StateHandler はダッシュボードの表示データと選択操作のHTTPハンドラー。
// 一覧はプロセス内キャッシュから返し、統計のみ毎回ストアに問い合わせる。
type StateHandler struct {
	gateway store.Gateway
	state   *appstate.State
}

// NewStateHandler はStateHandlerを生成する。
func NewStateHandler(gateway store.Gateway, state *appstate.State) *StateHandler {
	return &StateHandler{
		gateway: gateway,
		state:   state,
	}
}

// usersResponse は利用者一覧のAPIレスポンス。
type usersResponse struct {
	Cards          []appstate.UserCard `json:"cards"`
	SearchTerm     string              `json:"search_term"`
	SelectionCount int                 `json:"selection_count"`
}

// selectionResponse は選択状態のAPIレスポンス。
type selectionResponse struct {
	UserIDs []string `json:"user_ids"`
	Count   int      `json:"count"`
}

// ListUsers は検索語で絞り込んだ利用者カード一覧を返す。
// 検索語はクエリパラメータで更新され、選択には影響しない。
// GET /api/users?search=...
func (h *StateHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("search") {
		h.state.SetSearchTerm(r.URL.Query().Get("search"))
	}

	writeJSON(w, http.StatusOK, usersResponse{
		Cards:          h.state.Cards(),
		SearchTerm:     h.state.SearchTerm(),
		SelectionCount: h.state.SelectionCount(),
	})
}

// ListSites はアクティブなサイト一覧を返す。
// GET /api/sites
func (h *StateHandler) ListSites(w http.ResponseWriter, r *http.Request) {
	sites := h.state.Sites()
	if sites == nil {
		sites = []*model.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

// Stats は統計情報を返す。キャッシュせず毎回ストアに問い合わせる。
// GET /api/stats
func (h *StateHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateway.FetchStats(r.Context())
	if err != nil {
		handleServiceError(w, model.NewQueryFailedError("statistiques indisponibles"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ToggleSelection は利用者の選択状態を反転する。
// POST /api/selection/{userID}/toggle
func (h *StateHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	selected := h.state.ToggleSelection(userID)
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"selected": selected,
		"count":    h.state.SelectionCount(),
	})
}

// ClearSelection は選択をすべて解除する。
// DELETE /api/selection
func (h *StateHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	h.state.ClearSelection()
	writeJSON(w, http.StatusOK, selectionResponse{UserIDs: []string{}, Count: 0})
}

// GetSelection は選択中の利用者ID一覧を返す。
// GET /api/selection
func (h *StateHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	ids := h.state.Selection()
	writeJSON(w, http.StatusOK, selectionResponse{UserIDs: ids, Count: len(ids)})
}
