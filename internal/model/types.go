package model

import (
	"time"

	"github.com/google/uuid"
)

// Account represents one identity in the system. At least one of username,
// email or phone number is always set; each unique field holds across the
// whole store when present.
type Account struct {
	ID             uuid.UUID
	Username       string
	Email          *string
	PhoneNumber    *string
	CredentialHash string
	IsActive       bool
	IsAdmin        bool
	IsSuperuser    bool
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

// OtpRecord is a single-use verification challenge. Exactly one of
// PhoneNumber or Email is set. It carries no account reference: the contact
// is resolved to an account only at verification time, because the contact
// may not yet belong to any account.
type OtpRecord struct {
	ID          uuid.UUID
	PhoneNumber *string
	Email       *string
	Code        string
	ExpireAt    time.Time
	CreatedAt   time.Time
}

// Contact returns the record's contact value and whether it is a phone
// number.
func (r OtpRecord) Contact() (value string, isPhone bool) {
	if r.PhoneNumber != nil {
		return *r.PhoneNumber, true
	}
	if r.Email != nil {
		return *r.Email, false
	}
	return "", false
}

// FailedAttempt tracks repeated authentication failures per account. The
// counter is recorded but no lockout policy is enforced; LockUntil exists as
// an extension point.
type FailedAttempt struct {
	AccountID uuid.UUID
	Count     int
	LockUntil *time.Time
}
