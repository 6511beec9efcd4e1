package repository

import (
	"context"

	"github.com/karoba/wellness/internal/domain"
)

// ListFilter selects a page of accounts.
type ListFilter struct {
	IncludeInactive bool
	Limit           int
	Offset          int
}

// AccountRepository is the account store. Implementations normalize emails,
// never hash credentials, and treat deactivated accounts as invisible to
// FindByID, FindByEmail and default listings.
type AccountRepository interface {
	Create(ctx context.Context, account domain.NewAccount) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error)
	UpdateCredential(ctx context.Context, id string, credentialHash []byte) error
	RecordLogin(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Account, error)
	Count(ctx context.Context, includeInactive bool) (int, error)
	Ping(ctx context.Context) error
}
