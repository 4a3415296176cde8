package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexauth/server/internal/model"
)

// AccountField names a unique identity column.
type AccountField string

const (
	FieldUsername AccountField = "username"
	FieldEmail    AccountField = "email"
	FieldPhone    AccountField = "phone_number"
)

// NewAccount carries the fields for an account insert.
type NewAccount struct {
	Username       string
	Email          *string
	PhoneNumber    *string
	CredentialHash string
	IsAdmin        bool
	IsSuperuser    bool
}

// AccountRepo defines the interface for account repository operations
type AccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Account, error)
	GetByUsername(ctx context.Context, username string) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByPhone(ctx context.Context, phone string) (model.Account, error)
	Exists(ctx context.Context, field AccountField, value string) (bool, error)
	// Create inserts the account and returns ErrDuplicate when any unique
	// field is already taken. The constraint, not a prior existence check,
	// is the authority.
	Create(ctx context.Context, n NewAccount) (model.Account, error)
	// CreateIfAbsent inserts with ON CONFLICT DO NOTHING and reports whether
	// a row was created. On conflict the caller decides whether the collision
	// was on the contact (re-select) or on the generated username (retry).
	CreateIfAbsent(ctx context.Context, n NewAccount) (model.Account, bool, error)
	// UpdateCredential replaces the credential hash and bumps modified_at.
	UpdateCredential(ctx context.Context, id uuid.UUID, credentialHash string) error
}

type accountRepo struct {
	db *sql.DB
}

// NewAccountRepo creates a new AccountRepo instance
func NewAccountRepo(db *sql.DB) AccountRepo {
	return &accountRepo{db: db}
}

const accountColumns = `id, username, email, phone_number, credential_hash,
       is_active, is_admin, is_superuser, created_at, modified_at`

func scanAccount(row *sql.Row) (model.Account, error) {
	var acct model.Account
	var idStr string
	err := row.Scan(
		&idStr,
		&acct.Username,
		&acct.Email,
		&acct.PhoneNumber,
		&acct.CredentialHash,
		&acct.IsActive,
		&acct.IsAdmin,
		&acct.IsSuperuser,
		&acct.CreatedAt,
		&acct.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, ErrNotFound
		}
		return model.Account{}, fmt.Errorf("scan account: %w", err)
	}
	acct.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Account{}, fmt.Errorf("parse account ID: %w", err)
	}
	return acct, nil
}

// GetByID retrieves an account by ID
func (r *accountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	return scanAccount(r.db.QueryRowContext(ctx, query, id.String()))
}

func (r *accountRepo) getByField(ctx context.Context, field AccountField, value string) (model.Account, error) {
	switch field {
	case FieldUsername, FieldEmail, FieldPhone:
	default:
		return model.Account{}, fmt.Errorf("unknown account field %q", field)
	}
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1`, accountColumns, field)
	return scanAccount(r.db.QueryRowContext(ctx, query, value))
}

// GetByUsername retrieves an account by username
func (r *accountRepo) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.getByField(ctx, FieldUsername, username)
}

// GetByEmail retrieves an account by email
func (r *accountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.getByField(ctx, FieldEmail, email)
}

// GetByPhone retrieves an account by phone number
func (r *accountRepo) GetByPhone(ctx context.Context, phone string) (model.Account, error) {
	return r.getByField(ctx, FieldPhone, phone)
}

// Exists reports whether an account with the given unique field value exists.
func (r *accountRepo) Exists(ctx context.Context, field AccountField, value string) (bool, error) {
	switch field {
	case FieldUsername, FieldEmail, FieldPhone:
	default:
		return false, fmt.Errorf("unknown account field %q", field)
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM accounts WHERE %s = $1)`, field)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account existence: %w", err)
	}
	return exists, nil
}

const insertAccountQuery = `
	INSERT INTO accounts (username, email, phone_number, credential_hash, is_admin, is_superuser)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// Create inserts a new account row.
func (r *accountRepo) Create(ctx context.Context, n NewAccount) (model.Account, error) {
	query := insertAccountQuery + fmt.Sprintf(" RETURNING %s", accountColumns)
	acct, err := scanAccount(r.db.QueryRowContext(ctx, query,
		n.Username, n.Email, n.PhoneNumber, n.CredentialHash, n.IsAdmin, n.IsSuperuser))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, ErrDuplicate
		}
		return model.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acct, nil
}

// CreateIfAbsent inserts a new account row unless any unique field collides.
func (r *accountRepo) CreateIfAbsent(ctx context.Context, n NewAccount) (model.Account, bool, error) {
	query := insertAccountQuery + fmt.Sprintf(" ON CONFLICT DO NOTHING RETURNING %s", accountColumns)
	acct, err := scanAccount(r.db.QueryRowContext(ctx, query,
		n.Username, n.Email, n.PhoneNumber, n.CredentialHash, n.IsAdmin, n.IsSuperuser))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// No row returned: the insert was skipped by a conflict.
			return model.Account{}, false, nil
		}
		return model.Account{}, false, fmt.Errorf("insert account: %w", err)
	}
	return acct, true, nil
}

// UpdateCredential replaces the stored credential hash.
func (r *accountRepo) UpdateCredential(ctx context.Context, id uuid.UUID, credentialHash string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET credential_hash = $2, modified_at = now() WHERE id = $1
	`, id.String(), credentialHash)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
