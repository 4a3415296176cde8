package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/repo"
)

func newTestLedger(t *testing.T) (*Ledger, *repo.MemoryOtpRepo) {
	t.Helper()
	otps := repo.NewMemoryOtpRepo()
	return NewLedger(otps, 2*time.Minute, 4), otps
}

func TestLedgerIssueCodeShape(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		rec, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
		require.NoError(t, err)
		require.Len(t, rec.Code, 4)
		assert.GreaterOrEqual(t, rec.Code, "1000", "leading digit must never be zero")
		assert.LessOrEqual(t, rec.Code, "9999")
		for _, r := range rec.Code {
			assert.True(t, r >= '0' && r <= '9', "code must be ASCII digits, got %q", rec.Code)
		}
	}
}

func TestLedgerIssueSetsExpiry(t *testing.T) {
	ledger, _ := newTestLedger(t)
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return issued }

	rec, err := ledger.Issue(context.Background(), identifier.KindEmail, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, issued.Add(2*time.Minute), rec.ExpireAt)
	require.NotNil(t, rec.Email)
	assert.Equal(t, "user@example.com", *rec.Email)
	assert.Nil(t, rec.PhoneNumber)
}

func TestLedgerVerifySucceedsExactlyOnce(t *testing.T) {
	ledger, otps := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
	require.NoError(t, err)

	got, err := ledger.Verify(ctx, rec.Code)
	require.NoError(t, err)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, "09123456789", *got.PhoneNumber)
	assert.Equal(t, 0, otps.Outstanding(), "verified record must be deleted")

	_, err = ledger.Verify(ctx, rec.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound, "a consumed code must not verify twice")
}

func TestLedgerVerifyExpired(t *testing.T) {
	ledger, otps := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
	require.NoError(t, err)

	ledger.now = func() time.Time { return rec.ExpireAt.Add(time.Second) }

	_, err = ledger.Verify(ctx, rec.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Equal(t, 0, otps.Outstanding(), "expired match is purged on the terminal outcome")

	_, err = ledger.Verify(ctx, rec.Code)
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLedgerVerifyExactTTLBoundary(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	rec, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
	require.NoError(t, err)

	// Validity requires now strictly before expire_at.
	ledger.now = func() time.Time { return rec.ExpireAt }
	_, err = ledger.Verify(ctx, rec.Code)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestLedgerVerifyFormat(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, code := range []string{"", "123", "12345", "12a4", "١٢٣٤"} {
		_, err := ledger.Verify(ctx, code)
		assert.ErrorIs(t, err, ErrInvalidFormat, "code %q", code)
	}
}

func TestLedgerVerifyUnknownCode(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Verify(context.Background(), "4821")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestLedgerVerifyNewestMatchWins(t *testing.T) {
	ledger, otps := newTestLedger(t)
	ctx := context.Background()

	// Two outstanding records share a code value; the later issuance wins
	// and the older one stays until its own expiry.
	phoneA, phoneB := "09111111111", "09222222222"
	expire := time.Now().Add(2 * time.Minute)
	_, err := otps.Insert(ctx, model.OtpRecord{PhoneNumber: &phoneA, Code: "4821", ExpireAt: expire})
	require.NoError(t, err)
	_, err = otps.Insert(ctx, model.OtpRecord{PhoneNumber: &phoneB, Code: "4821", ExpireAt: expire})
	require.NoError(t, err)

	got, err := ledger.Verify(ctx, "4821")
	require.NoError(t, err)
	require.NotNil(t, got.PhoneNumber)
	assert.Equal(t, phoneB, *got.PhoneNumber)
	assert.Equal(t, 1, otps.Outstanding())

	got, err = ledger.Verify(ctx, "4821")
	require.NoError(t, err)
	assert.Equal(t, phoneA, *got.PhoneNumber)
}

func TestLedgerCoexistingCodesForOneContact(t *testing.T) {
	ledger, otps := newTestLedger(t)
	ctx := context.Background()

	first, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
	require.NoError(t, err)
	second, err := ledger.Issue(ctx, identifier.KindPhone, "09123456789")
	require.NoError(t, err)

	assert.Equal(t, 2, otps.Outstanding(), "issuance must not deduplicate outstanding codes")
	if first.Code != second.Code {
		_, err = ledger.Verify(ctx, first.Code)
		require.NoError(t, err)
		_, err = ledger.Verify(ctx, second.Code)
		require.NoError(t, err)
	}
}

func TestReaperRemovesExpired(t *testing.T) {
	otps := repo.NewMemoryOtpRepo()
	phone := "09123456789"
	_, err := otps.Insert(context.Background(), model.OtpRecord{
		PhoneNumber: &phone, Code: "1234", ExpireAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	n, err := otps.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, otps.Outstanding())
}
