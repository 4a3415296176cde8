package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nexauth/server/internal/model"
)

// OtpRepo defines the interface for OTP record repository operations
type OtpRepo interface {
	// Insert stores a new OTP record. Multiple outstanding records for the
	// same contact may coexist.
	Insert(ctx context.Context, rec model.OtpRecord) (model.OtpRecord, error)
	// ConsumeNewestByCode atomically removes and returns the most recently
	// created record carrying the code, expired or not. Returns ErrNotFound
	// when no record matches. Expiry is judged by the caller; the row is
	// gone either way, so a code can never be consumed twice.
	ConsumeNewestByCode(ctx context.Context, code string) (model.OtpRecord, error)
	// DeleteExpired removes records whose expiry passed before the given
	// time. Housekeeping only; correctness never depends on it.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

func scanOtpRecord(row *sql.Row) (model.OtpRecord, error) {
	var rec model.OtpRecord
	var idStr string
	err := row.Scan(
		&idStr,
		&rec.PhoneNumber,
		&rec.Email,
		&rec.Code,
		&rec.ExpireAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OtpRecord{}, ErrNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("scan otp record: %w", err)
	}
	rec.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse otp record ID: %w", err)
	}
	return rec, nil
}

// Insert stores a new OTP record and returns it with ID and creation time set.
func (r *otpRepo) Insert(ctx context.Context, rec model.OtpRecord) (model.OtpRecord, error) {
	query := `
		INSERT INTO otp_codes (phone_number, email, code, expire_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, phone_number, email, code, expire_at, created_at
	`
	stored, err := scanOtpRecord(r.db.QueryRowContext(ctx, query,
		rec.PhoneNumber, rec.Email, rec.Code, rec.ExpireAt))
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("insert otp record: %w", err)
	}
	return stored, nil
}

// ConsumeNewestByCode deletes and returns the newest record with the code in
// one statement, so two concurrent submissions of the same code cannot both
// succeed.
func (r *otpRepo) ConsumeNewestByCode(ctx context.Context, code string) (model.OtpRecord, error) {
	query := `
		DELETE FROM otp_codes
		WHERE id = (
			SELECT id FROM otp_codes
			WHERE code = $1
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, phone_number, email, code, expire_at, created_at
	`
	rec, err := scanOtpRecord(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.OtpRecord{}, ErrNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("consume otp record: %w", err)
	}
	return rec, nil
}

// DeleteExpired removes stale records.
func (r *otpRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM otp_codes WHERE expire_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired otp records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
