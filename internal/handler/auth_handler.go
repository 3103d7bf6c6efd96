// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/cardbinder/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	ResolveAccount(ctx context.Context, token string) (*model.Account, error)
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
}

// AuthHandler はアカウント解決のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type authRequest struct {
	AccessToken string `json:"access_token" validate:"required,max=8192"`
}

type userResponse struct {
	ID                string    `json:"id"`
	ExternalSubjectID string    `json:"privy_did"`
	CreatedAt         time.Time `json:"created_at"`
}

type authResponse struct {
	User userResponse `json:"user"`
}

func toUserResponse(a *model.Account) userResponse {
	return userResponse{
		ID:                a.ID,
		ExternalSubjectID: a.ExternalSubjectID,
		CreatedAt:         a.CreatedAt,
	}
}

// Authenticate はアクセストークンを検証し、対応するアカウントを返す。
// 初回ログイン時はアカウントを作成する。
// POST /api/auth
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if apiErr := decodeJSONBody(w, r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	account, err := h.service.ResolveAccount(r.Context(), req.AccessToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(account)})
}

// Me は現在のアカウント情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccountID(w, r)
	if !ok {
		return
	}

	account, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{User: toUserResponse(account)})
}
