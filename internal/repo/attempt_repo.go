package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexauth/server/internal/model"
)

// AttemptRepo defines the interface for failed-attempt counter operations.
// The counter is bookkeeping only; no lockout policy reads it yet.
type AttemptRepo interface {
	Record(ctx context.Context, accountID uuid.UUID) (newCount int, err error)
	Reset(ctx context.Context, accountID uuid.UUID) error
	Get(ctx context.Context, accountID uuid.UUID) (model.FailedAttempt, error)
}

type attemptRepo struct {
	db *sql.DB
}

// NewAttemptRepo creates a new AttemptRepo instance
func NewAttemptRepo(db *sql.DB) AttemptRepo {
	return &attemptRepo{db: db}
}

// Record increments the failure counter for the account, creating the row on
// first failure, and returns the new count.
func (r *attemptRepo) Record(ctx context.Context, accountID uuid.UUID) (int, error) {
	var newCount int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO failed_attempts (account_id, count)
		VALUES ($1, 1)
		ON CONFLICT (account_id)
		DO UPDATE SET count = failed_attempts.count + 1
		RETURNING count
	`, accountID.String()).Scan(&newCount)
	if err != nil {
		return 0, fmt.Errorf("record failed attempt: %w", err)
	}
	return newCount, nil
}

// Reset clears the failure counter for the account.
func (r *attemptRepo) Reset(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM failed_attempts WHERE account_id = $1
	`, accountID.String())
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}
	return nil
}

// Get returns the counter row for the account.
func (r *attemptRepo) Get(ctx context.Context, accountID uuid.UUID) (model.FailedAttempt, error) {
	var att model.FailedAttempt
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id, count, lock_until FROM failed_attempts WHERE account_id = $1
	`, accountID.String()).Scan(&idStr, &att.Count, &att.LockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.FailedAttempt{}, ErrNotFound
		}
		return model.FailedAttempt{}, fmt.Errorf("query failed attempts: %w", err)
	}
	att.AccountID, err = uuid.Parse(idStr)
	if err != nil {
		return model.FailedAttempt{}, fmt.Errorf("parse account ID: %w", err)
	}
	return att, nil
}
