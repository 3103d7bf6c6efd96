// Package collection はユーザーごとのカード収集状態を管理するドメインロジックを提供する。
// すべての操作はミドルウェアで解決済みのアカウントIDにスコープされる。
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cardbinder/internal/catalog"
	"github.com/hitoshi/cardbinder/internal/metrics"
	"github.com/hitoshi/cardbinder/internal/model"
	"github.com/hitoshi/cardbinder/internal/repository"
	"github.com/hitoshi/cardbinder/internal/security"
)

// AddSetInput はセット登録の入力。
type AddSetInput struct {
	ExternalSetID string
	Name          string
	Series        *string
	TotalCards    int
}

// CardInput は一括初期化で呼び出し元から渡されるカード。
type CardInput struct {
	ExternalCardID string
	Name           string
	Number         string
}

// Service はコレクション管理のサービス層。
type Service struct {
	setRepo   repository.TrackedSetRepository
	cardRepo  repository.CardRepository
	catalog   catalog.Provider
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	setRepo repository.TrackedSetRepository,
	cardRepo repository.CardRepository,
	catalogProvider catalog.Provider,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		setRepo:   setRepo,
		cardRepo:  cardRepo,
		catalog:   catalogProvider,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ListSets はアカウントの登録セットを登録順で返す。
func (s *Service) ListSets(ctx context.Context, accountID string) ([]*model.TrackedSet, error) {
	sets, err := s.setRepo.ListByUserID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("登録セット一覧の取得に失敗しました: %w", err)
	}
	return sets, nil
}

// ListCards は登録セットのカード一覧を返す。
// アカウントがそのセットを登録していない場合はNotFoundを返す。
func (s *Service) ListCards(ctx context.Context, accountID, externalSetID string) ([]*model.Card, error) {
	externalSetID = strings.TrimSpace(externalSetID)
	if externalSetID == "" {
		return nil, model.NewValidationError("setApiId は必須です")
	}

	set, err := s.setRepo.FindByExternalID(ctx, accountID, externalSetID)
	if err != nil {
		return nil, fmt.Errorf("登録セットの取得に失敗しました: %w", err)
	}
	if set == nil {
		return nil, model.NewSetNotFoundError(externalSetID)
	}

	cards, err := s.cardRepo.ListBySet(ctx, accountID, externalSetID)
	if err != nil {
		return nil, fmt.Errorf("カード一覧の取得に失敗しました: %w", err)
	}
	return cards, nil
}

// AddSet はセットを登録し、カタログから取得した全カードを未収集として作成する。
// カタログ取得はトランザクションの外で先に行い、セットとカードの作成は1トランザクションで行う。
// そのため途中で失敗してもカードの無いセットは残らず、同じ操作を再試行できる。
func (s *Service) AddSet(ctx context.Context, accountID string, input AddSetInput) (*model.TrackedSet, []*model.Card, error) {
	input.ExternalSetID = strings.TrimSpace(input.ExternalSetID)
	input.Name = s.sanitizer.Sanitize(input.Name)
	if input.Series != nil {
		series := s.sanitizer.Sanitize(*input.Series)
		if series == "" {
			input.Series = nil
		} else {
			input.Series = &series
		}
	}
	if err := validateAddSetInput(input); err != nil {
		return nil, nil, err
	}

	existing, err := s.setRepo.FindByExternalID(ctx, accountID, input.ExternalSetID)
	if err != nil {
		return nil, nil, fmt.Errorf("登録セットの取得に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, nil, model.NewSetAlreadyTrackedError(input.ExternalSetID)
	}

	catalogCards, err := s.catalog.ListCards(ctx, input.ExternalSetID)
	if err != nil {
		return nil, nil, s.catalogError(err, input.ExternalSetID)
	}

	now := s.now()
	set := &model.TrackedSet{
		ID:            uuid.New().String(),
		UserID:        accountID,
		ExternalSetID: input.ExternalSetID,
		Name:          input.Name,
		Series:        input.Series,
		TotalCards:    input.TotalCards,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	cards := make([]*model.Card, 0, len(catalogCards))
	seen := make(map[string]struct{}, len(catalogCards))
	for _, cc := range catalogCards {
		if _, dup := seen[cc.ExternalCardID]; dup {
			continue
		}
		seen[cc.ExternalCardID] = struct{}{}
		cards = append(cards, &model.Card{
			ID:             uuid.New().String(),
			UserID:         accountID,
			ExternalSetID:  input.ExternalSetID,
			ExternalCardID: cc.ExternalCardID,
			Name:           s.sanitizer.Sanitize(cc.Name),
			Number:         strings.TrimSpace(cc.Number),
			// カタログの並び順を作成日時で保持する
			CreatedAt: now.Add(time.Duration(len(cards)) * time.Microsecond),
			UpdatedAt: now,
		})
	}

	if err := s.setRepo.CreateWithCards(ctx, set, cards); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, model.NewSetAlreadyTrackedError(input.ExternalSetID)
		}
		slog.Error("セットとカードの作成に失敗しました",
			slog.String("user_id", accountID),
			slog.String("set_api_id", input.ExternalSetID),
			slog.Int("cards_count", len(cards)),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewCollectionWriteFailedError("addSet")
	}

	s.metrics.RecordSetAdded(len(cards))
	slog.Info("set added",
		slog.String("user_id", accountID),
		slog.String("set_api_id", input.ExternalSetID),
		slog.Int("cards_count", len(cards)),
	)

	return set, cards, nil
}

// BulkInitCards は呼び出し元が用意したカード一覧をセットに一括登録する。
// 既存カードは収集状態を保持したまま名前と番号を更新するため、繰り返し呼び出しても重複しない。
// セットが登録されていない場合はNotFoundを返す。
func (s *Service) BulkInitCards(ctx context.Context, accountID, externalSetID string, inputs []CardInput) ([]*model.Card, *model.TrackedSet, error) {
	externalSetID = strings.TrimSpace(externalSetID)
	if externalSetID == "" {
		return nil, nil, model.NewValidationError("set_api_id は必須です")
	}
	if len(inputs) == 0 {
		return nil, nil, model.NewValidationError("cards は1件以上必要です")
	}

	now := s.now()
	cards := make([]*model.Card, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		id := strings.TrimSpace(in.ExternalCardID)
		name := s.sanitizer.Sanitize(in.Name)
		number := strings.TrimSpace(in.Number)
		if id == "" || name == "" || number == "" {
			return nil, nil, model.NewValidationError(fmt.Sprintf("cards[%d] の id, name, number は必須です", i))
		}
		if _, dup := seen[id]; dup {
			return nil, nil, model.NewValidationError(fmt.Sprintf("カードIDが重複しています: %s", id))
		}
		seen[id] = struct{}{}

		cards = append(cards, &model.Card{
			ID:             uuid.New().String(),
			UserID:         accountID,
			ExternalSetID:  externalSetID,
			ExternalCardID: id,
			Name:           name,
			Number:         number,
			CreatedAt:      now.Add(time.Duration(i) * time.Microsecond),
			UpdatedAt:      now,
		})
	}

	saved, set, err := s.cardRepo.UpsertBatch(ctx, accountID, externalSetID, cards)
	if err != nil {
		slog.Error("カードの一括登録に失敗しました",
			slog.String("user_id", accountID),
			slog.String("set_api_id", externalSetID),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewCollectionWriteFailedError("bulkInitCards")
	}
	if set == nil {
		return nil, nil, model.NewSetNotFoundError(externalSetID)
	}

	s.metrics.RecordCardsUpserted(len(saved))
	return saved, set, nil
}

// ToggleCard はカードの収集状態を設定し、親セットの収集数を実カウントから再計算する。
// 同じ値を繰り返し設定しても収集数は変化しない。
func (s *Service) ToggleCard(ctx context.Context, accountID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error) {
	if _, err := uuid.Parse(cardID); err != nil {
		return nil, nil, model.NewCardNotFoundError(cardID)
	}

	card, set, err := s.cardRepo.SetCollected(ctx, accountID, cardID, collected)
	if err != nil {
		slog.Error("カード収集状態の更新に失敗しました",
			slog.String("user_id", accountID),
			slog.String("card_id", cardID),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewCollectionWriteFailedError("toggleCard")
	}
	if card == nil {
		return nil, nil, model.NewCardNotFoundError(cardID)
	}

	s.metrics.RecordCardToggled(collected)
	return card, set, nil
}

// RemoveSet は登録セットと、そのセットのカタログIDに属するアカウントのカードを削除する。
func (s *Service) RemoveSet(ctx context.Context, accountID, trackedSetID string) error {
	if _, err := uuid.Parse(trackedSetID); err != nil {
		return model.NewSetNotFoundError(trackedSetID)
	}

	deleted, err := s.setRepo.DeleteWithCards(ctx, accountID, trackedSetID)
	if err != nil {
		slog.Error("セットの削除に失敗しました",
			slog.String("user_id", accountID),
			slog.String("set_id", trackedSetID),
			slog.String("error", err.Error()),
		)
		return model.NewCollectionWriteFailedError("removeSet")
	}
	if !deleted {
		return model.NewSetNotFoundError(trackedSetID)
	}

	s.metrics.RecordSetRemoved()
	slog.Info("set removed",
		slog.String("user_id", accountID),
		slog.String("set_id", trackedSetID),
	)
	return nil
}

// CatalogSets はカタログのセット一覧を返す。
func (s *Service) CatalogSets(ctx context.Context, nameFilter string) ([]model.CatalogSet, error) {
	sets, err := s.catalog.ListSets(ctx, nameFilter)
	if err != nil {
		return nil, s.catalogError(err, "")
	}
	return sets, nil
}

// CatalogCards はカタログ上のセットのカード一覧を返す。
func (s *Service) CatalogCards(ctx context.Context, externalSetID string) ([]model.CatalogCard, error) {
	externalSetID = strings.TrimSpace(externalSetID)
	if externalSetID == "" {
		return nil, model.NewValidationError("setApiId は必須です")
	}
	cards, err := s.catalog.ListCards(ctx, externalSetID)
	if err != nil {
		return nil, s.catalogError(err, externalSetID)
	}
	return cards, nil
}

// catalogError はカタログクライアントのエラーをAPIErrorに変換する。
func (s *Service) catalogError(err error, externalSetID string) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return model.NewCatalogSetNotFoundError(externalSetID)
	}
	slog.Warn("カタログの取得に失敗しました",
		slog.String("set_api_id", externalSetID),
		slog.String("error", err.Error()),
	)
	return model.NewCatalogUnavailableError()
}

func validateAddSetInput(input AddSetInput) error {
	var problems []string
	if input.ExternalSetID == "" {
		problems = append(problems, "set_api_id は必須です")
	}
	if input.Name == "" {
		problems = append(problems, "set_name は必須です")
	}
	if input.TotalCards <= 0 {
		problems = append(problems, "total_cards は1以上で指定してください")
	}
	if len(problems) > 0 {
		return model.NewValidationError(strings.Join(problems, ", "))
	}
	return nil
}
