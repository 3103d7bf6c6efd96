// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/cardbinder/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("repository: duplicate record")

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// isUniqueViolation はerrが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

// AccountRepository はユーザーディレクトリの永続化インターフェース。
type AccountRepository interface {
	// ResolveOrCreate は外部subject IDに対応するアカウントを返す。存在しなければ作成する。
	// 同一subjectに対する同時呼び出しでも作成されるレコードは1件のみ。
	ResolveOrCreate(ctx context.Context, externalSubjectID string) (*model.Account, error)

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// TrackedSetRepository は登録セットの永続化インターフェース。
type TrackedSetRepository interface {
	// ListByUserID はユーザーの登録セットを登録順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.TrackedSet, error)

	// FindByExternalID はユーザーIDとカタログのセットIDで登録セットを検索する。
	// 見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, userID, externalSetID string) (*model.TrackedSet, error)

	// CreateWithCards はセットとその全カードを同一トランザクションで作成する。
	// 同じセットが既に登録されている場合はErrDuplicateを返す。
	CreateWithCards(ctx context.Context, set *model.TrackedSet, cards []*model.Card) error

	// DeleteWithCards は指定IDのセットと、そのセットのカタログIDに属するカードを削除する。
	// 対象セットが存在しない場合はfalseを返す。
	DeleteWithCards(ctx context.Context, userID, id string) (bool, error)

	// RecountAll はキャッシュ値と実カウントが食い違う全セットのcollected_cardsを再集計する。
	// 修復した行数を返す。
	RecountAll(ctx context.Context) (int64, error)
}

// CardRepository はカード収集状態の永続化インターフェース。
type CardRepository interface {
	// ListBySet はユーザーの指定セットのカードを作成順、番号順で返す。
	ListBySet(ctx context.Context, userID, externalSetID string) ([]*model.Card, error)

	// UpsertBatch はカードを一括でUPSERTし、同一トランザクションで親セットを再集計する。
	// 既存カードのcollectedは保持し、名前と番号のみ更新する。
	// 親セットが存在しない場合はnilを返す。
	UpsertBatch(ctx context.Context, userID, externalSetID string, cards []*model.Card) ([]*model.Card, *model.TrackedSet, error)

	// SetCollected はカードの収集状態を更新し、同一トランザクションで親セットを再集計する。
	// カードが見つからない場合はnilを返す。
	SetCollected(ctx context.Context, userID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error)
}
