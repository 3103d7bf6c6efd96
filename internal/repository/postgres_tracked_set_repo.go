package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/cardbinder/internal/model"
)

// PostgresTrackedSetRepo はPostgreSQLを使用した登録セットリポジトリ。
type PostgresTrackedSetRepo struct {
	db *sql.DB
}

// NewPostgresTrackedSetRepo はPostgresTrackedSetRepoを生成する。
func NewPostgresTrackedSetRepo(db *sql.DB) *PostgresTrackedSetRepo {
	return &PostgresTrackedSetRepo{db: db}
}

// ListByUserID はユーザーの登録セットを登録順で返す。
func (r *PostgresTrackedSetRepo) ListByUserID(ctx context.Context, userID string) ([]*model.TrackedSet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+trackedSetColumns+`
		 FROM tracked_sets WHERE user_id = $1
		 ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("登録セット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	sets := make([]*model.TrackedSet, 0)
	for rows.Next() {
		set, err := scanTrackedSet(rows)
		if err != nil {
			return nil, fmt.Errorf("登録セットのスキャンに失敗しました: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("登録セット一覧の走査に失敗しました: %w", err)
	}
	return sets, nil
}

// FindByExternalID はユーザーIDとカタログのセットIDで登録セットを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresTrackedSetRepo) FindByExternalID(ctx context.Context, userID, externalSetID string) (*model.TrackedSet, error) {
	set, err := scanTrackedSet(r.db.QueryRowContext(ctx,
		`SELECT `+trackedSetColumns+`
		 FROM tracked_sets WHERE user_id = $1 AND external_set_id = $2`,
		userID, externalSetID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("登録セットの検索に失敗しました: %w", err)
	}
	return set, nil
}

// CreateWithCards はセットとその全カードを同一トランザクションで作成する。
// いずれかの挿入が失敗した場合は全体がロールバックされる。
func (r *PostgresTrackedSetRepo) CreateWithCards(ctx context.Context, set *model.TrackedSet, cards []*model.Card) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tracked_sets (id, user_id, external_set_id, name, series, total_cards, collected_cards, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`,
		set.ID, set.UserID, set.ExternalSetID, set.Name, set.Series, set.TotalCards, set.CreatedAt, set.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert tracked set: %w", err)
	}
	set.CollectedCards = 0

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cards (id, user_id, external_set_id, external_card_id, name, number, collected, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare card insert: %w", err)
	}
	defer stmt.Close()

	for _, card := range cards {
		if _, err := stmt.ExecContext(ctx,
			card.ID, card.UserID, card.ExternalSetID, card.ExternalCardID,
			card.Name, card.Number, card.CreatedAt, card.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to insert card %s: %w", card.ExternalCardID, err)
		}
		card.Collected = false
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteWithCards は指定IDのセットと、そのセットのカタログIDに属するカードを削除する。
// セット行をロックしてからカード行を削除する。
func (r *PostgresTrackedSetRepo) DeleteWithCards(ctx context.Context, userID, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var externalSetID string
	err = tx.QueryRowContext(ctx,
		`SELECT external_set_id FROM tracked_sets WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID,
	).Scan(&externalSetID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to find tracked set: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cards WHERE user_id = $1 AND external_set_id = $2`,
		userID, externalSetID,
	); err != nil {
		return false, fmt.Errorf("failed to delete cards: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM tracked_sets WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete tracked set: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// 並行する削除に先を越された
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// RecountAll はキャッシュ値と実カウントが食い違う全セットのcollected_cardsを再集計する。
func (r *PostgresTrackedSetRepo) RecountAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracked_sets ts
		 SET collected_cards = live.collected,
		     updated_at = now()
		 FROM (
		     SELECT s.id, COUNT(c.id) FILTER (WHERE c.collected) AS collected
		     FROM tracked_sets s
		     LEFT JOIN cards c
		       ON c.user_id = s.user_id AND c.external_set_id = s.external_set_id
		     GROUP BY s.id
		 ) live
		 WHERE ts.id = live.id AND ts.collected_cards <> live.collected`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recount tracked sets: %w", err)
	}
	return result.RowsAffected()
}

// compile-time interface check
var _ TrackedSetRepository = (*PostgresTrackedSetRepo)(nil)
