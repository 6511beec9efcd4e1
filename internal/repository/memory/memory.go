// Package memory is an in-process account store used for local runs and tests.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
)

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger used for decode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Repository) { r.logger = logger }
}

type record struct {
	account   domain.Account
	interests string
	seq       int64
}

// Repository keeps accounts in a map guarded by a mutex.
type Repository struct {
	mu      sync.RWMutex
	byID    map[string]*record
	byEmail map[string]string
	seq     int64
	now     func() time.Time
	logger  *slog.Logger
}

// New constructs an empty Repository.
func New(opts ...Option) *Repository {
	r := &Repository{
		byID:    make(map[string]*record),
		byEmail: make(map[string]string),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ repository.AccountRepository = (*Repository)(nil)

// Ping always succeeds.
func (r *Repository) Ping(context.Context) error { return nil }

// Create stores a new active account.
func (r *Repository) Create(_ context.Context, account domain.NewAccount) (*domain.Account, error) {
	account.Normalize()
	if err := account.Validate(); err != nil {
		return nil, err
	}
	interests, err := domain.EncodeInterests(account.Interests)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[account.Email]; taken {
		return nil, repository.ErrDuplicateEmail
	}
	now := r.now().UTC()
	r.seq++
	rec := &record{
		account: domain.Account{
			ID:             uuid.NewString(),
			Email:          account.Email,
			CredentialHash: append([]byte(nil), account.CredentialHash...),
			FirstName:      account.FirstName,
			LastName:       account.LastName,
			Phone:          account.Phone,
			BirthDate:      account.BirthDate,
			Role:           account.Role,
			IsActive:       true,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		interests: interests,
		seq:       r.seq,
	}
	r.byID[rec.account.ID] = rec
	r.byEmail[rec.account.Email] = rec.account.ID
	return r.materialize(rec), nil
}

// FindByID returns an active account.
func (r *Repository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok || !rec.account.IsActive {
		return nil, repository.ErrNotFound
	}
	return r.materialize(rec), nil
}

// FindByEmail returns an active account by normalized email.
func (r *Repository) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rec := r.byID[id]
	if !rec.account.IsActive {
		return nil, repository.ErrNotFound
	}
	return r.materialize(rec), nil
}

// Update applies the patch and bumps the version. An empty patch only re-reads.
func (r *Repository) Update(_ context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.IsEmpty() {
		return r.materialize(rec), nil
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != rec.account.Version {
		return nil, repository.ErrVersionConflict
	}
	if patch.Interests != nil {
		encoded, err := domain.EncodeInterests(*patch.Interests)
		if err != nil {
			return nil, err
		}
		rec.interests = encoded
		patch.Interests = nil
	}
	patch.Apply(&rec.account)
	r.touch(rec)
	return r.materialize(rec), nil
}

// UpdateCredential overwrites the stored hash.
func (r *Repository) UpdateCredential(_ context.Context, id string, credentialHash []byte) error {
	if len(credentialHash) == 0 {
		return &domain.ValidationError{Field: "password", Reason: "is required"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.CredentialHash = append([]byte(nil), credentialHash...)
	r.touch(rec)
	return nil
}

// RecordLogin stamps the last login time.
func (r *Repository) RecordLogin(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.now().UTC()
	rec.account.LastLogin = &now
	return nil
}

// Deactivate soft-deletes an account. Repeated calls succeed.
func (r *Repository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.account.IsActive = false
	r.touch(rec)
	return nil
}

// List returns accounts newest first.
func (r *Repository) List(_ context.Context, filter repository.ListFilter) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := r.filter(filter.IncludeInactive)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.account.CreatedAt.Equal(b.account.CreatedAt) {
			return a.account.CreatedAt.After(b.account.CreatedAt)
		}
		return a.seq > b.seq
	})

	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}

	accounts := make([]domain.Account, 0, end-offset)
	for _, rec := range matched[offset:end] {
		accounts = append(accounts, *r.materialize(rec))
	}
	return accounts, nil
}

// Count returns the number of accounts matching the filter.
func (r *Repository) Count(_ context.Context, includeInactive bool) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filter(includeInactive)), nil
}

// SetRawInterests overwrites the stored interests value verbatim.
func (r *Repository) SetRawInterests(id, raw string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.interests = raw
	return nil
}

func (r *Repository) filter(includeInactive bool) []*record {
	out := make([]*record, 0, len(r.byID))
	for _, rec := range r.byID {
		if includeInactive || rec.account.IsActive {
			out = append(out, rec)
		}
	}
	return out
}

func (r *Repository) touch(rec *record) {
	rec.account.UpdatedAt = r.now().UTC()
	rec.account.Version++
}

// materialize copies a record so callers never alias stored state.
func (r *Repository) materialize(rec *record) *domain.Account {
	a := rec.account
	a.CredentialHash = append([]byte(nil), rec.account.CredentialHash...)
	if rec.account.BirthDate != nil {
		d := *rec.account.BirthDate
		a.BirthDate = &d
	}
	if rec.account.LastLogin != nil {
		t := *rec.account.LastLogin
		a.LastLogin = &t
	}
	a.Interests = repository.DecodeInterests(r.logger, a.ID, rec.interests)
	return &a
}
