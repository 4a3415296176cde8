package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/repo"
)

// Retries for a generated-username collision before giving up. A collision
// needs two identical random 12-digit values, so one retry is already rare.
const maxUsernameRetries = 5

// AccountPolicy carries the externally configured account limits.
type AccountPolicy struct {
	MinPasswordLength int
	MaxUsernameLength int
}

// Accounts wraps the account store with creation and validation rules.
type Accounts struct {
	repo   repo.AccountRepo
	policy AccountPolicy
}

// NewAccounts creates an Accounts service.
func NewAccounts(accountRepo repo.AccountRepo, policy AccountPolicy) *Accounts {
	return &Accounts{repo: accountRepo, policy: policy}
}

// CreateParams carries optional fields for account creation. Omitted
// username and password are auto-generated; the generated password is not
// returned to the caller.
type CreateParams struct {
	Username    string
	Password    string
	Email       string
	PhoneNumber string
}

// CreateUser creates an account, generating any omitted username or
// credential. A supplied unique field that already exists fails with
// ErrDuplicateField.
func (a *Accounts) CreateUser(ctx context.Context, p CreateParams) (model.Account, error) {
	return a.create(ctx, p, false)
}

func (a *Accounts) create(ctx context.Context, p CreateParams, superuser bool) (model.Account, error) {
	if p.Username != "" && len(p.Username) > a.policy.MaxUsernameLength {
		return model.Account{}, fmt.Errorf("username must be at most %d characters: %w",
			a.policy.MaxUsernameLength, ErrInvalidFormat)
	}
	if p.Password != "" && len(p.Password) < a.policy.MinPasswordLength {
		return model.Account{}, fmt.Errorf("password must be at least %d characters: %w",
			a.policy.MinPasswordLength, ErrMissingField)
	}

	password := p.Password
	if password == "" {
		generated, err := GenerateCredential()
		if err != nil {
			return model.Account{}, err
		}
		password = generated
	}
	hash, err := HashCredential(password)
	if err != nil {
		return model.Account{}, err
	}

	// Store the same normalized form the classifier produces, so an account
	// created here is found by the contact lookups later.
	n := repo.NewAccount{CredentialHash: hash, IsAdmin: superuser, IsSuperuser: superuser}
	if p.Email != "" {
		email, err := identifier.NormalizeEmail(p.Email)
		if err != nil {
			return model.Account{}, fmt.Errorf("email: %w", ErrInvalidFormat)
		}
		n.Email = &email
	}
	if p.PhoneNumber != "" {
		phone, err := identifier.NormalizePhone(p.PhoneNumber)
		if err != nil {
			return model.Account{}, fmt.Errorf("phone number: %w", ErrInvalidFormat)
		}
		n.PhoneNumber = &phone
	}

	if p.Username != "" {
		n.Username = p.Username
		acct, err := a.repo.Create(ctx, n)
		if errors.Is(err, repo.ErrDuplicate) {
			return model.Account{}, ErrDuplicateField
		}
		return acct, err
	}

	// Generated username: retry on the (unlikely) collision. A conflict on
	// a supplied contact field still surfaces as a duplicate.
	for attempt := 0; attempt < maxUsernameRetries; attempt++ {
		n.Username, err = GenerateUsername()
		if err != nil {
			return model.Account{}, err
		}
		acct, err := a.repo.Create(ctx, n)
		if err == nil {
			return acct, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return model.Account{}, err
		}
		if taken, exErr := a.repo.Exists(ctx, repo.FieldUsername, n.Username); exErr == nil && !taken {
			// The conflict was not the generated username; the supplied
			// contact must already exist.
			return model.Account{}, ErrDuplicateField
		}
	}
	return model.Account{}, fmt.Errorf("could not find a free generated username after %d attempts", maxUsernameRetries)
}

// CreateSuperuser creates an administrative account. Email and phone number
// are both required.
func (a *Accounts) CreateSuperuser(ctx context.Context, p CreateParams) (model.Account, error) {
	if p.Email == "" {
		return model.Account{}, fmt.Errorf("superuser must have an email address: %w", ErrMissingField)
	}
	if p.PhoneNumber == "" {
		return model.Account{}, fmt.Errorf("superuser must have a phone number: %w", ErrMissingField)
	}
	if p.Password == "" {
		return model.Account{}, fmt.Errorf("superuser must have a password: %w", ErrMissingField)
	}

	return a.create(ctx, p, true)
}

// SetPassword replaces an account's credential with a new password.
func (a *Accounts) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	if len(password) < a.policy.MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w",
			a.policy.MinPasswordLength, ErrMissingField)
	}
	hash, err := HashCredential(password)
	if err != nil {
		return err
	}
	if err := a.repo.UpdateCredential(ctx, id, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// ResolveOrCreate maps a verified contact to its account, creating one when
// the contact is unseen. Returns whether a new account was created. The
// insert relies on the store's uniqueness constraint, so two concurrent
// verifications of the same new contact produce exactly one account.
func (a *Accounts) ResolveOrCreate(ctx context.Context, kind identifier.Kind, contact string) (model.Account, bool, error) {
	lookup := a.repo.GetByPhone
	field := repo.FieldPhone
	if kind == identifier.KindEmail {
		lookup = a.repo.GetByEmail
		field = repo.FieldEmail
	}

	for attempt := 0; attempt < maxUsernameRetries; attempt++ {
		acct, err := lookup(ctx, contact)
		if err == nil {
			return acct, false, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return model.Account{}, false, err
		}

		username, err := GenerateUsername()
		if err != nil {
			return model.Account{}, false, err
		}
		secret, err := GenerateCredential()
		if err != nil {
			return model.Account{}, false, err
		}
		hash, err := HashCredential(secret)
		if err != nil {
			return model.Account{}, false, err
		}

		n := repo.NewAccount{Username: username, CredentialHash: hash}
		v := contact
		if field == repo.FieldPhone {
			n.PhoneNumber = &v
		} else {
			n.Email = &v
		}

		acct, created, err := a.repo.CreateIfAbsent(ctx, n)
		if err != nil {
			return model.Account{}, false, err
		}
		if created {
			return acct, true, nil
		}
		// Skipped insert: either the contact appeared concurrently (the
		// re-lookup finds it) or the generated username collided (retry).
	}
	return model.Account{}, false, fmt.Errorf("could not resolve or create account for %s", kind)
}

// Exists reports whether any account holds the classified identifier.
func (a *Accounts) Exists(ctx context.Context, id identifier.Identifier) (bool, error) {
	field := repo.FieldPhone
	if id.Kind == identifier.KindEmail {
		field = repo.FieldEmail
	}
	return a.repo.Exists(ctx, field, id.Value)
}
