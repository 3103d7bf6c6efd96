package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/cardbinder/internal/collection"
	"github.com/hitoshi/cardbinder/internal/middleware"
	"github.com/hitoshi/cardbinder/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	resolveAccountFn func(ctx context.Context, token string) (*model.Account, error)
	getAccountFn     func(ctx context.Context, accountID string) (*model.Account, error)
}

func (m *mockAuthService) ResolveAccount(ctx context.Context, token string) (*model.Account, error) {
	if m.resolveAccountFn != nil {
		return m.resolveAccountFn(ctx, token)
	}
	return nil, model.NewInvalidTokenError()
}

func (m *mockAuthService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, accountID)
	}
	return nil, model.NewUnauthorizedError()
}

type mockCollectionService struct {
	listSetsFn      func(ctx context.Context, accountID string) ([]*model.TrackedSet, error)
	addSetFn        func(ctx context.Context, accountID string, input collection.AddSetInput) (*model.TrackedSet, []*model.Card, error)
	removeSetFn     func(ctx context.Context, accountID, trackedSetID string) error
	listCardsFn     func(ctx context.Context, accountID, externalSetID string) ([]*model.Card, error)
	bulkInitCardsFn func(ctx context.Context, accountID, externalSetID string, cards []collection.CardInput) ([]*model.Card, *model.TrackedSet, error)
	toggleCardFn    func(ctx context.Context, accountID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error)
}

var errNotMocked = errors.New("not mocked")

func (m *mockCollectionService) ListSets(ctx context.Context, accountID string) ([]*model.TrackedSet, error) {
	if m.listSetsFn != nil {
		return m.listSetsFn(ctx, accountID)
	}
	return nil, errNotMocked
}

func (m *mockCollectionService) AddSet(ctx context.Context, accountID string, input collection.AddSetInput) (*model.TrackedSet, []*model.Card, error) {
	if m.addSetFn != nil {
		return m.addSetFn(ctx, accountID, input)
	}
	return nil, nil, errNotMocked
}

func (m *mockCollectionService) RemoveSet(ctx context.Context, accountID, trackedSetID string) error {
	if m.removeSetFn != nil {
		return m.removeSetFn(ctx, accountID, trackedSetID)
	}
	return errNotMocked
}

func (m *mockCollectionService) ListCards(ctx context.Context, accountID, externalSetID string) ([]*model.Card, error) {
	if m.listCardsFn != nil {
		return m.listCardsFn(ctx, accountID, externalSetID)
	}
	return nil, errNotMocked
}

func (m *mockCollectionService) BulkInitCards(ctx context.Context, accountID, externalSetID string, cards []collection.CardInput) ([]*model.Card, *model.TrackedSet, error) {
	if m.bulkInitCardsFn != nil {
		return m.bulkInitCardsFn(ctx, accountID, externalSetID, cards)
	}
	return nil, nil, errNotMocked
}

func (m *mockCollectionService) ToggleCard(ctx context.Context, accountID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error) {
	if m.toggleCardFn != nil {
		return m.toggleCardFn(ctx, accountID, cardID, collected)
	}
	return nil, nil, errNotMocked
}

type mockCatalogService struct {
	catalogSetsFn  func(ctx context.Context, nameFilter string) ([]model.CatalogSet, error)
	catalogCardsFn func(ctx context.Context, externalSetID string) ([]model.CatalogCard, error)
}

func (m *mockCatalogService) CatalogSets(ctx context.Context, nameFilter string) ([]model.CatalogSet, error) {
	if m.catalogSetsFn != nil {
		return m.catalogSetsFn(ctx, nameFilter)
	}
	return nil, errNotMocked
}

func (m *mockCatalogService) CatalogCards(ctx context.Context, externalSetID string) ([]model.CatalogCard, error) {
	if m.catalogCardsFn != nil {
		return m.catalogCardsFn(ctx, externalSetID)
	}
	return nil, errNotMocked
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// withAccountID はリクエストコンテキストにアカウントIDを注入する。
func withAccountID(r *http.Request, accountID string) *http.Request {
	return r.WithContext(middleware.ContextWithAccountID(r.Context(), accountID))
}
