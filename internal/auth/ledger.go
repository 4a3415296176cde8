package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/nexauth/server/internal/identifier"
	"github.com/nexauth/server/internal/model"
	"github.com/nexauth/server/internal/repo"
)

// Ledger issues and verifies one-time passcodes. Codes are looked up by
// value, not by contact: the verification step receives only the code. Two
// outstanding records may carry the same code; the newest one wins.
type Ledger struct {
	otps       repo.OtpRepo
	ttl        time.Duration
	codeLength int
	now        func() time.Time
}

// NewLedger creates a ledger with the given TTL and code length.
func NewLedger(otps repo.OtpRepo, ttl time.Duration, codeLength int) *Ledger {
	return &Ledger{
		otps:       otps,
		ttl:        ttl,
		codeLength: codeLength,
		now:        time.Now,
	}
}

// Issue mints a fresh code for the contact and stores it with the ledger's
// TTL. Outstanding codes for the same contact are left alone.
func (l *Ledger) Issue(ctx context.Context, kind identifier.Kind, contact string) (model.OtpRecord, error) {
	code, err := l.generateCode()
	if err != nil {
		return model.OtpRecord{}, err
	}

	rec := model.OtpRecord{
		Code:     code,
		ExpireAt: l.now().Add(l.ttl),
	}
	switch kind {
	case identifier.KindPhone:
		rec.PhoneNumber = &contact
	case identifier.KindEmail:
		rec.Email = &contact
	default:
		return model.OtpRecord{}, fmt.Errorf("unsupported channel %v", kind)
	}

	stored, err := l.otps.Insert(ctx, rec)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("store otp record: %w", err)
	}
	return stored, nil
}

// Verify consumes the newest record carrying the code. Every terminal
// outcome removes the record, so a second submission of the same code fails
// with ErrCodeNotFound whether the first succeeded or had expired.
func (l *Ledger) Verify(ctx context.Context, code string) (model.OtpRecord, error) {
	if len(code) != l.codeLength || !allDigits(code) {
		return model.OtpRecord{}, ErrInvalidFormat
	}

	rec, err := l.otps.ConsumeNewestByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.OtpRecord{}, ErrCodeNotFound
		}
		return model.OtpRecord{}, fmt.Errorf("consume otp record: %w", err)
	}

	if !l.now().Before(rec.ExpireAt) {
		return model.OtpRecord{}, ErrCodeExpired
	}
	return rec, nil
}

// generateCode draws a uniformly random code with a non-zero leading digit,
// e.g. 1000–9999 for length 4.
func (l *Ledger) generateCode() (string, error) {
	low := pow10(l.codeLength - 1)
	span := big.NewInt(9 * low)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%d", n.Int64()+low), nil
}

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Reaper periodically deletes expired records. Expiry is still checked
// lazily at verification time; this only bounds table growth.
type Reaper struct {
	otps     repo.OtpRepo
	interval time.Duration
	logf     func(format string, args ...any)
}

// NewReaper creates a reaper that sweeps at the given interval.
func NewReaper(otps repo.OtpRepo, interval time.Duration, logf func(format string, args ...any)) *Reaper {
	return &Reaper{otps: otps, interval: interval, logf: logf}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.otps.DeleteExpired(ctx, time.Now())
			if err != nil {
				r.logf("otp reaper: %v", err)
				continue
			}
			if n > 0 {
				r.logf("otp reaper: removed %d expired records", n)
			}
		}
	}
}
