// Package auth はアクセストークンの検証とアカウント解決を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/cardbinder/internal/model"
	"github.com/hitoshi/cardbinder/internal/repository"
)

// TokenVerifier は外部IdPのアクセストークン検証のインターフェース。
// 将来的に複数IdPに対応するための抽象化。
type TokenVerifier interface {
	// Verify はトークンを検証し、IdP上のsubject識別子を返す。
	Verify(ctx context.Context, token string) (string, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	verifier    TokenVerifier
	accountRepo repository.AccountRepository
}

// NewService はServiceを生成する。
func NewService(verifier TokenVerifier, accountRepo repository.AccountRepository) *Service {
	return &Service{
		verifier:    verifier,
		accountRepo: accountRepo,
	}
}

// ResolveAccount はアクセストークンを検証し、対応するアカウントを返す。
// 初回ログインの場合はアカウントを自動作成する。
// トークンが無効な場合は*model.APIError（INVALID_TOKEN）を返す。
func (s *Service) ResolveAccount(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, model.NewUnauthorizedError()
	}

	subject, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			slog.Debug("access token rejected", slog.String("reason", err.Error()))
			return nil, model.NewInvalidTokenError()
		}
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}

	account, err := s.accountRepo.ResolveOrCreate(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	return account, nil
}

// GetAccount は指定IDのアカウントを取得する。
func (s *Service) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUnauthorizedError()
	}
	return account, nil
}
