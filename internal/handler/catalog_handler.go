package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/cardbinder/internal/model"
)

// CatalogServiceInterface はカタログ閲覧ハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	CatalogSets(ctx context.Context, nameFilter string) ([]model.CatalogSet, error)
	CatalogCards(ctx context.Context, externalSetID string) ([]model.CatalogCard, error)
}

// CatalogHandler はカタログ閲覧のHTTPハンドラー。認証不要。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

type catalogSetResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Series      string `json:"series"`
	Total       int    `json:"total"`
	ReleaseDate string `json:"release_date"`
}

type catalogCardResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// ListSets はカタログのセット一覧を新しい順に返す。
// GET /api/catalog/sets?q=xxx
func (h *CatalogHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.service.CatalogSets(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]catalogSetResponse, len(sets))
	for i, s := range sets {
		resp[i] = catalogSetResponse{
			ID:          s.ExternalID,
			Name:        s.Name,
			Series:      s.Series,
			Total:       s.TotalCount,
			ReleaseDate: s.ReleaseDate,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": resp})
}

// ListCards はカタログ上のセットの全カードを返す。
// GET /api/catalog/cards?setApiId=xxx
func (h *CatalogHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.service.CatalogCards(r.Context(), r.URL.Query().Get("setApiId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]catalogCardResponse, len(cards))
	for i, c := range cards {
		resp[i] = catalogCardResponse{ID: c.ExternalCardID, Name: c.Name, Number: c.Number}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": resp})
}
