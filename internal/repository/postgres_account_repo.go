package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/cardbinder/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// ResolveOrCreate は外部subject IDに対応するアカウントを返す。存在しなければ作成する。
// INSERT ... ON CONFLICT DO NOTHING で一意制約に競合解決を任せ、
// 競合で行が返らなかった場合は勝者の行を読み直す。
func (r *PostgresAccountRepo) ResolveOrCreate(ctx context.Context, externalSubjectID string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_subject_id, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (external_subject_id) DO NOTHING
		 RETURNING id, external_subject_id, created_at, updated_at`,
		uuid.New().String(), externalSubjectID,
	).Scan(&account.ID, &account.ExternalSubjectID, &account.CreatedAt, &account.UpdatedAt)
	if err == nil {
		return account, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}

	// 既存（または並行して作成された）アカウント
	err = r.db.QueryRowContext(ctx,
		`SELECT id, external_subject_id, created_at, updated_at FROM users WHERE external_subject_id = $1`,
		externalSubjectID,
	).Scan(&account.ID, &account.ExternalSubjectID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find account by subject: %w", err)
	}
	return account, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_subject_id, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.ExternalSubjectID, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
