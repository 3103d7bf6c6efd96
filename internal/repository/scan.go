package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cardbinder/internal/model"
)

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

const trackedSetColumns = `id, user_id, external_set_id, name, series, total_cards, collected_cards, created_at, updated_at`

const cardColumns = `id, user_id, external_set_id, external_card_id, name, number, collected, created_at, updated_at`

func scanTrackedSet(row rowScanner) (*model.TrackedSet, error) {
	set := &model.TrackedSet{}
	var series sql.NullString
	if err := row.Scan(
		&set.ID, &set.UserID, &set.ExternalSetID, &set.Name, &series,
		&set.TotalCards, &set.CollectedCards, &set.CreatedAt, &set.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if series.Valid {
		s := series.String
		set.Series = &s
	}
	return set, nil
}

func scanCard(row rowScanner) (*model.Card, error) {
	card := &model.Card{}
	if err := row.Scan(
		&card.ID, &card.UserID, &card.ExternalSetID, &card.ExternalCardID,
		&card.Name, &card.Number, &card.Collected, &card.CreatedAt, &card.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return card, nil
}

// lockTrackedSet は親セットの行をFOR UPDATEでロックし、そのIDを返す。
// カード行に触れる書き込みはすべて先にこのロックを取り、ロック順序を tracked_sets → cards で統一する。
// セットが存在しない場合は空文字を返す。
func lockTrackedSet(ctx context.Context, tx *sql.Tx, userID, externalSetID string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM tracked_sets WHERE user_id = $1 AND external_set_id = $2 FOR UPDATE`,
		userID, externalSetID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock tracked set: %w", err)
	}
	return id, nil
}

// recountInTx は親セットのcollected_cardsをカード行から再集計し、更新後のセットを返す。
// ロックは呼び出し側で取得済みのものを同一トランザクション内で再取得するため待機しない。
// セットが存在しない場合はnilを返す。
func recountInTx(ctx context.Context, tx *sql.Tx, userID, externalSetID string) (*model.TrackedSet, error) {
	lockedID, err := lockTrackedSet(ctx, tx, userID, externalSetID)
	if err != nil || lockedID == "" {
		return nil, err
	}

	set, err := scanTrackedSet(tx.QueryRowContext(ctx,
		`UPDATE tracked_sets ts
		 SET collected_cards = (
		         SELECT COUNT(*) FROM cards c
		         WHERE c.user_id = ts.user_id
		           AND c.external_set_id = ts.external_set_id
		           AND c.collected
		     ),
		     updated_at = now()
		 WHERE ts.id = $1
		 RETURNING `+trackedSetColumns,
		lockedID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to recount tracked set: %w", err)
	}
	return set, nil
}
