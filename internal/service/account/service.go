// Package account implements the administration and self-service workflows
// on top of the account store.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
	"github.com/karoba/wellness/internal/service/notify"
	"github.com/karoba/wellness/pkg/crypto"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// ErrSelfDeletion is returned when a caller targets their own account for deactivation.
var ErrSelfDeletion = errors.New("account: cannot deactivate your own account")

// Options tunes paging and notification behaviour.
type Options struct {
	MaxPageSize   int
	NotifyTimeout time.Duration
	Now           func() time.Time
}

// Service coordinates account workflows.
type Service struct {
	repo     repository.AccountRepository
	notifier notify.Notifier
	logger   *slog.Logger
	opts     Options
}

// New constructs a Service. A nil notifier disables notifications.
func New(repo repository.AccountRepository, notifier notify.Notifier, logger *slog.Logger, opts Options) Service {
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, notifier: notifier, logger: logger, opts: opts}
}

// CreateInput carries a new account with its plaintext password.
type CreateInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	BirthDate *time.Time
	Interests []string
	Role      domain.Role
}

// UpdateInput is a partial update with an optional password rotation.
type UpdateInput struct {
	Patch    domain.AccountPatch
	Password *string
}

// ListInput selects a page.
type ListInput struct {
	Page            int
	Limit           int
	IncludeInactive bool
}

// Page is one page of accounts plus its position in the whole set.
type Page struct {
	Accounts   []domain.Account
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// List returns a page of accounts newest first.
func (s Service) List(ctx context.Context, in ListInput) (Page, error) {
	page, limit := in.Page, in.Limit
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > s.opts.MaxPageSize {
		limit = s.opts.MaxPageSize
	}
	if page-1 > math.MaxInt/limit {
		return Page{}, &domain.ValidationError{Field: "page", Reason: "is out of range"}
	}

	accounts, err := s.repo.List(ctx, repository.ListFilter{
		IncludeInactive: in.IncludeInactive,
		Limit:           limit,
		Offset:          (page - 1) * limit,
	})
	if err != nil {
		return Page{}, fmt.Errorf("list accounts: %w", err)
	}
	total, err := s.repo.Count(ctx, in.IncludeInactive)
	if err != nil {
		return Page{}, fmt.Errorf("count accounts: %w", err)
	}
	return Page{
		Accounts:   accounts,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Create validates, hashes the password and stores a new account.
func (s Service) Create(ctx context.Context, in CreateInput) (*domain.Account, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = domain.RoleMember
	}
	if !in.Role.Valid() {
		return nil, &domain.ValidationError{Field: "role", Reason: "must be member or administrator"}
	}

	// The store's unique constraint remains authoritative.
	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return nil, repository.ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.Create(ctx, domain.NewAccount{
		Email:          in.Email,
		CredentialHash: hash,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Phone:          in.Phone,
		BirthDate:      in.BirthDate,
		Interests:      in.Interests,
		Role:           in.Role,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("account created", "user_id", created.ID, "role", created.Role)
	s.notify(ctx, domain.AccountCreated, created)
	return created, nil
}

// Get returns an active account.
func (s Service) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.repo.FindByID(ctx, id)
}

// Update applies field changes and, separately, rotates the password.
func (s Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Account, error) {
	if in.Password != nil && *in.Password == "" {
		return nil, &domain.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	in.Patch.Normalize()
	if err := in.Patch.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v := in.Patch.ExpectedVersion; v != nil && *v != current.Version {
		return nil, repository.ErrVersionConflict
	}

	updated, changed := current, false
	if !in.Patch.IsEmpty() {
		changed = true
		if updated, err = s.repo.Update(ctx, id, in.Patch); err != nil {
			return nil, err
		}
	}
	if in.Password != nil {
		changed = true
		hash, err := crypto.HashPassword(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		if err := s.repo.UpdateCredential(ctx, id, hash); err != nil {
			return nil, err
		}
		s.logger.Info("account credential rotated", "user_id", id)
		if updated, err = s.repo.Update(ctx, id, domain.AccountPatch{}); err != nil {
			return nil, err
		}
	}

	if changed {
		s.notify(ctx, domain.AccountUpdated, updated)
	}
	return updated, nil
}

// Deactivate soft-deletes id on behalf of callerID.
func (s Service) Deactivate(ctx context.Context, callerID, id string) error {
	if callerID != "" && callerID == id {
		return ErrSelfDeletion
	}
	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account deactivated", "user_id", id, "actor_id", callerID)
	target.IsActive = false
	s.notify(ctx, domain.AccountDeactivated, target)
	return nil
}

// Profile returns the caller's own account.
func (s Service) Profile(ctx context.Context, callerID string) (*domain.Account, error) {
	return s.repo.FindByID(ctx, callerID)
}

// UpdateProfile applies a self-service patch. Role, activation and
// verification state are not self-service fields and are ignored.
func (s Service) UpdateProfile(ctx context.Context, callerID string, patch domain.AccountPatch) (*domain.Account, error) {
	patch.Role = nil
	patch.IsActive = nil
	patch.EmailVerified = nil
	return s.Update(ctx, callerID, UpdateInput{Patch: patch})
}

// EnsureAdministrator creates in as an administrator unless its email is already registered.
func (s Service) EnsureAdministrator(ctx context.Context, in CreateInput) (*domain.Account, error) {
	existing, err := s.repo.FindByEmail(ctx, in.Email)
	if err == nil {
		if existing.Role != domain.RoleAdministrator {
			s.logger.Warn("bootstrap email belongs to a non-administrator account", "user_id", existing.ID)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("look up bootstrap administrator: %w", err)
	}
	in.Role = domain.RoleAdministrator
	created, err := s.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("create bootstrap administrator: %w", err)
	}
	return created, nil
}

func (s Service) notify(ctx context.Context, kind domain.AccountEventType, account *domain.Account) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.NotifyTimeout)
	defer cancel()
	event := domain.NewAccountEvent(kind, account, s.opts.Now())
	if err := s.notifier.Notify(notifyCtx, event); err != nil {
		s.logger.Warn("account notification failed", "type", kind, "user_id", account.ID, "error", err)
	}
}

func validateCreate(in CreateInput) error {
	required := []struct {
		field string
		value string
	}{
		{"email", in.Email},
		{"password", in.Password},
		{"firstName", in.FirstName},
		{"lastName", in.LastName},
		{"phone", in.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &domain.ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	return nil
}
