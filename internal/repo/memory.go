package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexauth/server/internal/model"
)

// In-memory implementations of the repository interfaces. They back unit
// tests and let the service run without Postgres; the semantics mirror the
// SQL implementations, including uniqueness conflicts and atomic consume.

type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]model.Account
	now      func() time.Time
}

func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[uuid.UUID]model.Account),
		now:      time.Now,
	}
}

func (r *MemoryAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *MemoryAccountRepo) findLocked(field AccountField, value string) (model.Account, bool) {
	for _, acct := range r.accounts {
		switch field {
		case FieldUsername:
			if acct.Username == value {
				return acct, true
			}
		case FieldEmail:
			if acct.Email != nil && *acct.Email == value {
				return acct, true
			}
		case FieldPhone:
			if acct.PhoneNumber != nil && *acct.PhoneNumber == value {
				return acct, true
			}
		}
	}
	return model.Account{}, false
}

func (r *MemoryAccountRepo) getByField(field AccountField, value string) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.findLocked(field, value)
	if !ok {
		return model.Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *MemoryAccountRepo) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	return r.getByField(FieldUsername, username)
}

func (r *MemoryAccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.getByField(FieldEmail, email)
}

func (r *MemoryAccountRepo) GetByPhone(ctx context.Context, phone string) (model.Account, error) {
	return r.getByField(FieldPhone, phone)
}

func (r *MemoryAccountRepo) Exists(ctx context.Context, field AccountField, value string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.findLocked(field, value)
	return ok, nil
}

func (r *MemoryAccountRepo) conflictLocked(n NewAccount) bool {
	if _, ok := r.findLocked(FieldUsername, n.Username); ok {
		return true
	}
	if n.Email != nil {
		if _, ok := r.findLocked(FieldEmail, *n.Email); ok {
			return true
		}
	}
	if n.PhoneNumber != nil {
		if _, ok := r.findLocked(FieldPhone, *n.PhoneNumber); ok {
			return true
		}
	}
	return false
}

func (r *MemoryAccountRepo) insertLocked(n NewAccount) model.Account {
	now := r.now()
	acct := model.Account{
		ID:             uuid.New(),
		Username:       n.Username,
		Email:          n.Email,
		PhoneNumber:    n.PhoneNumber,
		CredentialHash: n.CredentialHash,
		IsActive:       true,
		IsAdmin:        n.IsAdmin,
		IsSuperuser:    n.IsSuperuser,
		CreatedAt:      now,
		ModifiedAt:     now,
	}
	r.accounts[acct.ID] = acct
	return acct
}

func (r *MemoryAccountRepo) Create(ctx context.Context, n NewAccount) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictLocked(n) {
		return model.Account{}, ErrDuplicate
	}
	return r.insertLocked(n), nil
}

func (r *MemoryAccountRepo) CreateIfAbsent(ctx context.Context, n NewAccount) (model.Account, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictLocked(n) {
		return model.Account{}, false, nil
	}
	return r.insertLocked(n), true, nil
}

func (r *MemoryAccountRepo) UpdateCredential(ctx context.Context, id uuid.UUID, credentialHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[id]
	if !ok {
		return ErrNotFound
	}
	acct.CredentialHash = credentialHash
	acct.ModifiedAt = r.now()
	r.accounts[id] = acct
	return nil
}

type memoryOtpEntry struct {
	rec model.OtpRecord
	seq int
}

type MemoryOtpRepo struct {
	mu      sync.Mutex
	entries []memoryOtpEntry
	seq     int
	now     func() time.Time
}

func NewMemoryOtpRepo() *MemoryOtpRepo {
	return &MemoryOtpRepo{now: time.Now}
}

func (r *MemoryOtpRepo) Insert(ctx context.Context, rec model.OtpRecord) (model.OtpRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = uuid.New()
	rec.CreatedAt = r.now()
	r.seq++
	r.entries = append(r.entries, memoryOtpEntry{rec: rec, seq: r.seq})
	return rec, nil
}

func (r *MemoryOtpRepo) ConsumeNewestByCode(ctx context.Context, code string) (model.OtpRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, e := range r.entries {
		if e.rec.Code != code {
			continue
		}
		// Newest created wins; insertion order breaks creation-time ties.
		if idx < 0 || e.rec.CreatedAt.After(r.entries[idx].rec.CreatedAt) ||
			(e.rec.CreatedAt.Equal(r.entries[idx].rec.CreatedAt) && e.seq > r.entries[idx].seq) {
			idx = i
		}
	}
	if idx < 0 {
		return model.OtpRecord{}, ErrNotFound
	}
	rec := r.entries[idx].rec
	r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	return rec, nil
}

func (r *MemoryOtpRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var removed int64
	for _, e := range r.entries {
		if e.rec.ExpireAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// Outstanding returns the number of stored records, for tests and metrics.
func (r *MemoryOtpRepo) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type MemoryAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]model.FailedAttempt
}

func NewMemoryAttemptRepo() *MemoryAttemptRepo {
	return &MemoryAttemptRepo{attempts: make(map[uuid.UUID]model.FailedAttempt)}
}

func (r *MemoryAttemptRepo) Record(ctx context.Context, accountID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att := r.attempts[accountID]
	att.AccountID = accountID
	att.Count++
	r.attempts[accountID] = att
	return att.Count, nil
}

func (r *MemoryAttemptRepo) Reset(ctx context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, accountID)
	return nil
}

func (r *MemoryAttemptRepo) Get(ctx context.Context, accountID uuid.UUID) (model.FailedAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	att, ok := r.attempts[accountID]
	if !ok {
		return model.FailedAttempt{}, ErrNotFound
	}
	return att, nil
}

var (
	_ AccountRepo = (*MemoryAccountRepo)(nil)
	_ OtpRepo     = (*MemoryOtpRepo)(nil)
	_ AttemptRepo = (*MemoryAttemptRepo)(nil)
)
