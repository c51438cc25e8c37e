package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/mossline/account-api/internal/database"
	"github.com/mossline/account-api/internal/user"
)

// BunStore persists tokens in the tokens table.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) *BunStore {
	return &BunStore{db: db}
}

// Replace swaps the live token set for (t.UserID, t.Purpose) inside a single
// transaction. Without the transaction two concurrent issuances could leave
// two live tokens behind.
func (s *BunStore) Replace(ctx context.Context, t *Token) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*database.Token)(nil)).
			Where("user_id = ?", t.UserID).
			Where("purpose = ?", string(t.Purpose)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete existing tokens: %w", err)
		}

		dbToken := &database.Token{
			UserID:    t.UserID,
			Purpose:   string(t.Purpose),
			Value:     t.Value,
			ExpiresAt: t.ExpiresAt,
		}

		_, err = tx.NewInsert().
			Model(dbToken).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert token: %w", err)
		}

		t.ID = dbToken.ID
		t.CreatedAt = dbToken.CreatedAt
		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to replace tokens: %w", err)
	}

	return nil
}

// FindValid looks up a token by exact value, filtered to unexpired rows,
// newest first as the tie-break, with the owner loaded alongside.
func (s *BunStore) FindValid(ctx context.Context, value string, now time.Time) (*Token, error) {
	dbToken := new(database.Token)
	err := s.db.NewSelect().
		Model(dbToken).
		Relation("Owner").
		Where("t.value = ?", value).
		Where("t.expires_at > ?", now).
		OrderExpr("t.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}

	return mapDBTokenToModel(dbToken), nil
}

// DeleteByUserAndPurpose removes every token for (userID, purpose).
func (s *BunStore) DeleteByUserAndPurpose(ctx context.Context, userID uuid.UUID, purpose Purpose) error {
	_, err := s.db.NewDelete().
		Model((*database.Token)(nil)).
		Where("user_id = ?", userID).
		Where("purpose = ?", string(purpose)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

// mapDBTokenToModel converts a database row into the domain model
func mapDBTokenToModel(dbt *database.Token) *Token {
	t := &Token{
		ID:        dbt.ID,
		UserID:    dbt.UserID,
		Purpose:   Purpose(dbt.Purpose),
		Value:     dbt.Value,
		ExpiresAt: dbt.ExpiresAt,
		CreatedAt: dbt.CreatedAt,
	}
	if dbt.Owner != nil {
		t.Owner = user.FromRecord(dbt.Owner)
	}
	return t
}
