package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/repo"
)

// fakeNotifier records dispatched codes so tests can observe and replay them.
type fakeNotifier struct {
	mu     sync.Mutex
	sms    map[string][]string
	emails map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sms: make(map[string][]string), emails: make(map[string][]string)}
}

func (f *fakeNotifier) SendSMSCode(ctx context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sms[phone] = append(f.sms[phone], code)
	return nil
}

func (f *fakeNotifier) SendEmailCode(ctx context.Context, email, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[email] = append(f.emails[email], code)
	return nil
}

func (f *fakeNotifier) lastSMS(t *testing.T, phone string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.sms[phone]
	require.NotEmpty(t, codes, "expected an SMS code for %s", phone)
	return codes[len(codes)-1]
}

func (f *fakeNotifier) lastEmail(t *testing.T, email string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	codes := f.emails[email]
	require.NotEmpty(t, codes, "expected an email code for %s", email)
	return codes[len(codes)-1]
}

type testEnv struct {
	resolver *Resolver
	accounts *repo.MemoryAccountRepo
	attempts *repo.MemoryAttemptRepo
	ledger   *Ledger
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	accountRepo := repo.NewMemoryAccountRepo()
	otpRepo := repo.NewMemoryOtpRepo()
	attemptRepo := repo.NewMemoryAttemptRepo()
	notifier := newFakeNotifier()

	accounts := NewAccounts(accountRepo, AccountPolicy{MinPasswordLength: 8, MaxUsernameLength: 32})
	ledger := NewLedger(otpRepo, 2*time.Minute, 4)
	jwtService := NewJWTService("test-secret-at-least-32-characters!!", time.Hour)

	return &testEnv{
		resolver: NewResolver(accounts, ledger, notifier, jwtService, attemptRepo),
		accounts: accountRepo,
		attempts: attemptRepo,
		ledger:   ledger,
		notifier: notifier,
	}
}

func TestPhoneRegisterThenVerifyCreatesAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.resolver.RequestPhoneCode(ctx, FlowRegister, "09123456789")
	require.NoError(t, err)
	code := env.notifier.lastSMS(t, "09123456789")
	require.Len(t, code, 4)

	session, err := env.resolver.VerifyCode(ctx, code)
	require.NoError(t, err)
	assert.True(t, session.Registered)
	assert.NotEmpty(t, session.Token)
	require.NotNil(t, session.Account.PhoneNumber)
	assert.Equal(t, "09123456789", *session.Account.PhoneNumber)
	assert.Nil(t, session.Account.Email)

	// Auto-provisioned accounts get a numeric username within policy.
	assert.NotEmpty(t, session.Account.Username)
	assert.LessOrEqual(t, len(session.Account.Username), 32)
	for _, r := range session.Account.Username {
		assert.True(t, r >= '0' && r <= '9')
	}

	acct, err := env.accounts.GetByPhone(ctx, "09123456789")
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, acct.ID)
}

func TestPhoneVerifyResolvesExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	phone := "09123456789"
	existing, err := env.accounts.Create(ctx, repo.NewAccount{
		Username: "alice", PhoneNumber: &phone, CredentialHash: "x",
	})
	require.NoError(t, err)

	err = env.resolver.RequestPhoneCode(ctx, FlowLogin, phone)
	require.NoError(t, err)

	session, err := env.resolver.VerifyCode(ctx, env.notifier.lastSMS(t, phone))
	require.NoError(t, err)
	assert.False(t, session.Registered, "verification against a known contact is a login")
	assert.Equal(t, existing.ID, session.Account.ID)

	// Idempotent resolution: still exactly one account for the contact.
	acct, err := env.accounts.GetByPhone(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, acct.ID)
}

func TestPhoneLoginRequiresExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	err := env.resolver.RequestPhoneCode(context.Background(), FlowLogin, "09123456789")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestPhoneRegisterRejectsExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	phone := "09123456789"
	_, err := env.accounts.Create(ctx, repo.NewAccount{
		Username: "alice", PhoneNumber: &phone, CredentialHash: "x",
	})
	require.NoError(t, err)

	err = env.resolver.RequestPhoneCode(ctx, FlowRegister, phone)
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestEmailFlowNormalizesAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.resolver.RequestEmailCode(ctx, FlowRegister, "User@Example.COM")
	require.NoError(t, err)
	code := env.notifier.lastEmail(t, "user@example.com")

	session, err := env.resolver.VerifyCode(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, session.Account.Email)
	assert.Equal(t, "user@example.com", *session.Account.Email)
}

func TestCombineFlowClassifies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kind, err := env.resolver.RequestCode(ctx, FlowRegister, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, identifier.KindEmail, kind)
	env.notifier.lastEmail(t, "user@example.com")

	// Persian numerals normalize before the shape check.
	kind, err = env.resolver.RequestCode(ctx, FlowRegister, "۰۹۱۲۳۴۵۶۷۸۹")
	require.NoError(t, err)
	assert.Equal(t, identifier.KindPhone, kind)
	env.notifier.lastSMS(t, "09123456789")
}

func TestCombineFlowRejectsMalformedInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, raw := range []string{"not-a-contact", "bad@", "123"} {
		_, err := env.resolver.RequestCode(ctx, FlowLogin, raw)
		assert.ErrorIs(t, err, ErrInvalidFormat, "input %q", raw)
	}
}

func TestVerifyExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.resolver.RequestPhoneCode(ctx, FlowRegister, "09123456789")
	require.NoError(t, err)
	code := env.notifier.lastSMS(t, "09123456789")

	env.ledger.now = func() time.Time { return time.Now().Add(121 * time.Second) }

	_, err = env.resolver.VerifyCode(ctx, code)
	assert.ErrorIs(t, err, ErrCodeExpired)

	// No account was created for the unproven contact.
	_, err = env.accounts.GetByPhone(ctx, "09123456789")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRegisterUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acct, err := env.resolver.RegisterUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.Username)
	assert.True(t, CheckCredential(acct.CredentialHash, "s3cret-password"))

	_, err = env.resolver.RegisterUsername(ctx, "alice", "another-password")
	assert.ErrorIs(t, err, ErrDuplicateField)
}

func TestRegisterUsernameShortPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.resolver.RegisterUsername(ctx, "alice", "short")
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = env.accounts.GetByUsername(ctx, "alice")
	assert.ErrorIs(t, err, repo.ErrNotFound, "no account may be created on validation failure")
}

func TestLoginUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.resolver.RegisterUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)

	session, err := env.resolver.LoginUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "alice", session.Account.Username)
}

func TestLoginUsernameFailureIsOpaque(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.resolver.RegisterUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)

	_, wrongPass := env.resolver.LoginUsername(ctx, "alice", "wrong-password")
	_, unknownUser := env.resolver.LoginUsername(ctx, "bob", "s3cret-password")
	assert.ErrorIs(t, wrongPass, ErrAuthenticationFailed)
	assert.ErrorIs(t, unknownUser, ErrAuthenticationFailed)
}

func TestLoginUsernameRecordsFailedAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acct, err := env.resolver.RegisterUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = env.resolver.LoginUsername(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, ErrAuthenticationFailed)
	}
	att, err := env.attempts.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, att.Count)

	// A successful login clears the counter; no lockout is enforced at any
	// count.
	_, err = env.resolver.LoginUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)
	_, err = env.attempts.Get(ctx, acct.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	acct, err := env.resolver.RegisterUsername(ctx, "alice", "s3cret-password")
	require.NoError(t, err)

	err = env.resolver.ChangePassword(ctx, acct, "wrong-password", "brand-new-password")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	att, err := env.attempts.Get(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, att.Count)

	require.NoError(t, env.resolver.ChangePassword(ctx, acct, "s3cret-password", "brand-new-password"))

	_, err = env.resolver.LoginUsername(ctx, "alice", "s3cret-password")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	session, err := env.resolver.LoginUsername(ctx, "alice", "brand-new-password")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, session.Account.ID)
}

func TestVerifySessionTokenIsValid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.resolver.RequestPhoneCode(ctx, FlowRegister, "09123456789")
	require.NoError(t, err)

	session, err := env.resolver.VerifyCode(ctx, env.notifier.lastSMS(t, "09123456789"))
	require.NoError(t, err)

	jwtService := NewJWTService("test-secret-at-least-32-characters!!", time.Hour)
	claims, err := jwtService.VerifyToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Account.ID, claims.AccountID)
}
