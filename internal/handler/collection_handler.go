package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cardbinder/internal/collection"
	"github.com/hitoshi/cardbinder/internal/model"
)

// CollectionServiceInterface はコレクションハンドラーが必要とするサービスインターフェース。
type CollectionServiceInterface interface {
	ListSets(ctx context.Context, accountID string) ([]*model.TrackedSet, error)
	AddSet(ctx context.Context, accountID string, input collection.AddSetInput) (*model.TrackedSet, []*model.Card, error)
	RemoveSet(ctx context.Context, accountID, trackedSetID string) error
	ListCards(ctx context.Context, accountID, externalSetID string) ([]*model.Card, error)
	BulkInitCards(ctx context.Context, accountID, externalSetID string, cards []collection.CardInput) ([]*model.Card, *model.TrackedSet, error)
	ToggleCard(ctx context.Context, accountID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error)
}

// CollectionHandler は登録セットとカードのHTTPハンドラー。
type CollectionHandler struct {
	service CollectionServiceInterface
}

// NewCollectionHandler はCollectionHandlerを生成する。
func NewCollectionHandler(service CollectionServiceInterface) *CollectionHandler {
	return &CollectionHandler{service: service}
}

// setResponse は登録セットのAPIレスポンス。
type setResponse struct {
	ID             string    `json:"id"`
	SetAPIID       string    `json:"set_api_id"`
	SetName        string    `json:"set_name"`
	SetSeries      *string   `json:"set_series"`
	TotalCards     int       `json:"total_cards"`
	CollectedCards int       `json:"collected_cards"`
	Progress       float64   `json:"progress"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// cardResponse はカードのAPIレスポンス。
type cardResponse struct {
	ID         string    `json:"id"`
	SetAPIID   string    `json:"set_api_id"`
	CardAPIID  string    `json:"card_api_id"`
	CardName   string    `json:"card_name"`
	CardNumber string    `json:"card_number"`
	Collected  bool      `json:"collected"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type addSetRequest struct {
	SetAPIID   string  `json:"set_api_id" validate:"required,max=64"`
	SetName    string  `json:"set_name" validate:"required,max=255"`
	SetSeries  *string `json:"set_series" validate:"omitempty,max=255"`
	TotalCards int     `json:"total_cards" validate:"gt=0"`
}

type cardInputRequest struct {
	ID     string `json:"id" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=255"`
	Number string `json:"number" validate:"required,max=64"`
}

type bulkInitRequest struct {
	SetAPIID string             `json:"set_api_id" validate:"required,max=64"`
	Cards    []cardInputRequest `json:"cards" validate:"required,min=1,max=1000,dive"`
}

type toggleCardRequest struct {
	Collected *bool `json:"collected" validate:"required"`
}

func toSetResponse(s *model.TrackedSet) setResponse {
	return setResponse{
		ID:             s.ID,
		SetAPIID:       s.ExternalSetID,
		SetName:        s.Name,
		SetSeries:      s.Series,
		TotalCards:     s.TotalCards,
		CollectedCards: s.CollectedCards,
		Progress:       s.Progress(),
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func toCardResponse(c *model.Card) cardResponse {
	return cardResponse{
		ID:         c.ID,
		SetAPIID:   c.ExternalSetID,
		CardAPIID:  c.ExternalCardID,
		CardName:   c.Name,
		CardNumber: c.Number,
		Collected:  c.Collected,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toCardResponses(cards []*model.Card) []cardResponse {
	out := make([]cardResponse, len(cards))
	for i, c := range cards {
		out[i] = toCardResponse(c)
	}
	return out
}

// ListSets は登録セット一覧を返す。
// GET /api/sets
func (h *CollectionHandler) ListSets(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	sets, err := h.service.ListSets(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]setResponse, len(sets))
	for i, s := range sets {
		resp[i] = toSetResponse(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": resp})
}

// AddSet はセットを登録し、全カードを未収集で作成する。
// POST /api/sets
func (h *CollectionHandler) AddSet(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req addSetRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	set, cards, err := h.service.AddSet(r.Context(), accountID, collection.AddSetInput{
		ExternalSetID: req.SetAPIID,
		Name:          req.SetName,
		Series:        req.SetSeries,
		TotalCards:    req.TotalCards,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"set":   toSetResponse(set),
		"cards": toCardResponses(cards),
	})
}

// RemoveSet は登録セットとそのカードを削除する。
// DELETE /api/sets/{id}
func (h *CollectionHandler) RemoveSet(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveSet(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCards は登録セットのカード一覧を返す。
// GET /api/cards?setApiId=xxx
func (h *CollectionHandler) ListCards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	setAPIID := r.URL.Query().Get("setApiId")
	if setAPIID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("setApiId は必須です"))
		return
	}

	cards, err := h.service.ListCards(r.Context(), accountID, setAPIID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cards": toCardResponses(cards)})
}

// BulkInitCards は呼び出し元が指定したカードを登録セットに一括登録する。
// POST /api/cards
func (h *CollectionHandler) BulkInitCards(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req bulkInitRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	inputs := make([]collection.CardInput, len(req.Cards))
	for i, c := range req.Cards {
		inputs[i] = collection.CardInput{ExternalCardID: c.ID, Name: c.Name, Number: c.Number}
	}

	cards, set, err := h.service.BulkInitCards(r.Context(), accountID, req.SetAPIID, inputs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"cards": toCardResponses(cards),
		"set":   toSetResponse(set),
	})
}

// ToggleCard はカードの収集状態を更新し、更新後のカードとセットを返す。
// PATCH /api/cards/{id}
func (h *CollectionHandler) ToggleCard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	var req toggleCardRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	card, set, err := h.service.ToggleCard(r.Context(), accountID, chi.URLParam(r, "id"), *req.Collected)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card": toCardResponse(card),
		"set":  toSetResponse(set),
	})
}
