package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cardbinder/internal/model"
)

// PostgresCardRepo はPostgreSQLを使用したカードリポジトリ。
type PostgresCardRepo struct {
	db *sql.DB
}

// NewPostgresCardRepo はPostgresCardRepoを生成する。
func NewPostgresCardRepo(db *sql.DB) *PostgresCardRepo {
	return &PostgresCardRepo{db: db}
}

// ListBySet はユーザーの指定セットのカードを作成順、番号順で返す。
func (r *PostgresCardRepo) ListBySet(ctx context.Context, userID, externalSetID string) ([]*model.Card, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+cardColumns+`
		 FROM cards WHERE user_id = $1 AND external_set_id = $2
		 ORDER BY created_at ASC, number ASC`,
		userID, externalSetID,
	)
	if err != nil {
		return nil, fmt.Errorf("カード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	cards := make([]*model.Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("カードのスキャンに失敗しました: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カード一覧の走査に失敗しました: %w", err)
	}
	return cards, nil
}

// UpsertBatch はカードを一括でUPSERTし、同一トランザクションで親セットを再集計する。
// 親セットが存在しない場合は何も書き込まずにnilを返す。
func (r *PostgresCardRepo) UpsertBatch(ctx context.Context, userID, externalSetID string, cards []*model.Card) ([]*model.Card, *model.TrackedSet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	setID, err := lockTrackedSet(ctx, tx, userID, externalSetID)
	if err != nil {
		return nil, nil, err
	}
	if setID == "" {
		return nil, nil, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cards (id, user_id, external_set_id, external_card_id, name, number, collected, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
		 ON CONFLICT (user_id, external_set_id, external_card_id) DO UPDATE SET
		     name = EXCLUDED.name,
		     number = EXCLUDED.number,
		     updated_at = EXCLUDED.updated_at
		 RETURNING `+cardColumns,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to prepare card upsert: %w", err)
	}
	defer stmt.Close()

	result := make([]*model.Card, 0, len(cards))
	for _, card := range cards {
		saved, err := scanCard(stmt.QueryRowContext(ctx,
			card.ID, userID, externalSetID, card.ExternalCardID,
			card.Name, card.Number, card.CreatedAt, card.UpdatedAt,
		))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to upsert card %s: %w", card.ExternalCardID, err)
		}
		result = append(result, saved)
	}

	set, err := recountInTx(ctx, tx, userID, externalSetID)
	if err != nil {
		return nil, nil, err
	}
	if set == nil {
		// 並行して削除された
		return nil, nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, set, nil
}

// SetCollected はカードの収集状態を更新し、同一トランザクションで親セットを再集計する。
// 同じ値への更新でも再集計は行うため、結果は常に実カウントと一致する。
func (r *PostgresCardRepo) SetCollected(ctx context.Context, userID, cardID string, collected bool) (*model.Card, *model.TrackedSet, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var externalSetID string
	err = tx.QueryRowContext(ctx,
		`SELECT external_set_id FROM cards WHERE id = $1 AND user_id = $2`,
		cardID, userID,
	).Scan(&externalSetID)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find card: %w", err)
	}

	setID, err := lockTrackedSet(ctx, tx, userID, externalSetID)
	if err != nil {
		return nil, nil, err
	}
	if setID == "" {
		// 並行して削除された
		return nil, nil, nil
	}

	card, err := scanCard(tx.QueryRowContext(ctx,
		`UPDATE cards SET collected = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+cardColumns,
		cardID, userID, collected,
	))
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update card: %w", err)
	}

	set, err := recountInTx(ctx, tx, userID, card.ExternalSetID)
	if err != nil {
		return nil, nil, err
	}
	if set == nil {
		return nil, nil, fmt.Errorf("parent set missing for card %s", cardID)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return card, set, nil
}

// compile-time interface check
var _ CardRepository = (*PostgresCardRepo)(nil)
