package auth

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/notify"
	"github.com/nexauth/server/internal/repo"
)

// FlowKind distinguishes login from registration on the code-request side.
// The two converge at verification: whether the verified contact belongs to
// an existing account is decided only there.
type FlowKind int

const (
	FlowLogin FlowKind = iota + 1
	FlowRegister
)

func (k FlowKind) String() string {
	switch k {
	case FlowLogin:
		return "login"
	case FlowRegister:
		return "register"
	default:
		return "unknown"
	}
}

// Session is the handoff to the surrounding layer: the authenticated
// principal plus a signed token. Registered reports whether verification
// created the account.
type Session struct {
	Account    model.Account
	Token      string
	Registered bool
}

// Resolver orchestrates the classifier, account store, OTP ledger and
// notifier to implement the user-facing flows.
type Resolver struct {
	accounts *Accounts
	ledger   *Ledger
	notifier notify.Notifier
	sessions *JWTService
	attempts repo.AttemptRepo
}

// NewResolver creates a resolver. The notifier is an injected capability so
// tests can observe dispatches with a fake.
func NewResolver(
	accounts *Accounts,
	ledger *Ledger,
	notifier notify.Notifier,
	sessions *JWTService,
	attempts repo.AttemptRepo,
) *Resolver {
	return &Resolver{
		accounts: accounts,
		ledger:   ledger,
		notifier: notifier,
		sessions: sessions,
		attempts: attempts,
	}
}

// LoginUsername checks a username/password pair and establishes a session.
// Unknown usernames and wrong passwords are indistinguishable to the caller.
func (r *Resolver) LoginUsername(ctx context.Context, username, password string) (Session, error) {
	if username == "" || password == "" {
		return Session{}, fmt.Errorf("username and password are required: %w", ErrMissingField)
	}
	if len(username) > r.accounts.policy.MaxUsernameLength {
		return Session{}, fmt.Errorf("username must be at most %d characters: %w",
			r.accounts.policy.MaxUsernameLength, ErrInvalidFormat)
	}

	acct, err := r.accounts.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Session{}, ErrAuthenticationFailed
		}
		return Session{}, err
	}

	if !CheckCredential(acct.CredentialHash, password) {
		// Bookkeeping only; no lockout policy reads the counter.
		if _, recErr := r.attempts.Record(ctx, acct.ID); recErr != nil {
			log.Printf("record failed attempt for account %s: %v", acct.ID, recErr)
		}
		return Session{}, ErrAuthenticationFailed
	}

	if err := r.attempts.Reset(ctx, acct.ID); err != nil {
		log.Printf("reset failed attempts for account %s: %v", acct.ID, err)
	}
	return r.establish(acct, false)
}

// RegisterUsername creates an account from a username/password pair. No OTP
// is involved; the account exists immediately.
func (r *Resolver) RegisterUsername(ctx context.Context, username, password string) (model.Account, error) {
	if username == "" {
		return model.Account{}, fmt.Errorf("username is required: %w", ErrMissingField)
	}
	if len(password) < r.accounts.policy.MinPasswordLength {
		return model.Account{}, fmt.Errorf("password must be at least %d characters: %w",
			r.accounts.policy.MinPasswordLength, ErrMissingField)
	}
	return r.accounts.CreateUser(ctx, CreateParams{Username: username, Password: password})
}

// ChangePassword replaces an authenticated account's password. The current
// password is re-checked so a leaked access token alone cannot rotate the
// credential.
func (r *Resolver) ChangePassword(ctx context.Context, acct model.Account, current, next string) error {
	if current == "" || next == "" {
		return fmt.Errorf("current and new password are required: %w", ErrMissingField)
	}
	if !CheckCredential(acct.CredentialHash, current) {
		if _, recErr := r.attempts.Record(ctx, acct.ID); recErr != nil {
			log.Printf("record failed attempt for account %s: %v", acct.ID, recErr)
		}
		return ErrAuthenticationFailed
	}
	return r.accounts.SetPassword(ctx, acct.ID, next)
}

// RequestPhoneCode issues and dispatches a code for a phone-only flow.
func (r *Resolver) RequestPhoneCode(ctx context.Context, kind FlowKind, raw string) error {
	phone, err := identifier.NormalizePhone(raw)
	if err != nil {
		return ErrInvalidFormat
	}
	return r.requestCode(ctx, kind, identifier.Identifier{Kind: identifier.KindPhone, Value: phone})
}

// RequestEmailCode issues and dispatches a code for an email-only flow.
func (r *Resolver) RequestEmailCode(ctx context.Context, kind FlowKind, raw string) error {
	email, err := identifier.NormalizeEmail(raw)
	if err != nil {
		return ErrInvalidFormat
	}
	return r.requestCode(ctx, kind, identifier.Identifier{Kind: identifier.KindEmail, Value: email})
}

// RequestCode accepts an ambiguous identifier, classifies it, and issues a
// code on the resolved channel. The channel is returned so the caller can
// phrase the "code sent" message.
func (r *Resolver) RequestCode(ctx context.Context, kind FlowKind, raw string) (identifier.Kind, error) {
	id, err := identifier.Classify(raw)
	if err != nil {
		return 0, ErrInvalidFormat
	}
	return id.Kind, r.requestCode(ctx, kind, id)
}

// requestCode is the shared Requested→Challenged step for all OTP flows.
// The existence check here shapes error reporting only; the authoritative
// existence decision happens at verification.
func (r *Resolver) requestCode(ctx context.Context, kind FlowKind, id identifier.Identifier) error {
	exists, err := r.accounts.Exists(ctx, id)
	if err != nil {
		return err
	}
	switch kind {
	case FlowLogin:
		if !exists {
			return ErrAccountNotFound
		}
	case FlowRegister:
		if exists {
			return ErrDuplicateField
		}
	default:
		return fmt.Errorf("unknown flow kind %d", kind)
	}

	rec, err := r.ledger.Issue(ctx, id.Kind, id.Value)
	if err != nil {
		return err
	}

	// Fire-and-forget: delivery never blocks or fails the issuance path.
	if id.Kind == identifier.KindPhone {
		err = r.notifier.SendSMSCode(ctx, id.Value, rec.Code)
	} else {
		err = r.notifier.SendEmailCode(ctx, id.Value, rec.Code)
	}
	if err != nil {
		log.Printf("dispatch %s code for %s flow: %v", id.Kind, kind, err)
	}
	return nil
}

// VerifyCode consumes a submitted code and resolves the identity. If the
// record's contact belongs to an account the result is a login; otherwise an
// account is created on the spot. Existence is decided here, at the moment
// of proof-of-contact, never at request time.
func (r *Resolver) VerifyCode(ctx context.Context, code string) (Session, error) {
	rec, err := r.ledger.Verify(ctx, code)
	if err != nil {
		return Session{}, err
	}

	contact, isPhone := rec.Contact()
	if contact == "" {
		return Session{}, fmt.Errorf("otp record %s has no contact", rec.ID)
	}
	kind := identifier.KindEmail
	if isPhone {
		kind = identifier.KindPhone
	}

	acct, created, err := r.accounts.ResolveOrCreate(ctx, kind, contact)
	if err != nil {
		return Session{}, err
	}
	return r.establish(acct, created)
}

// establish turns a resolved account into a session handoff. Kept separate
// from validation so parsing never reaches into session state.
func (r *Resolver) establish(acct model.Account, registered bool) (Session, error) {
	token, err := r.sessions.SignAccessToken(acct.ID, acct.Username)
	if err != nil {
		return Session{}, err
	}
	return Session{Account: acct, Token: token, Registered: registered}, nil
}
