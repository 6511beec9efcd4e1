package account

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
	"github.com/karoba/wellness/internal/repository/memory"
	"github.com/karoba/wellness/pkg/crypto"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AccountEvent
	err    error
	ctxErr error
}

func (r *recordingNotifier) Notify(ctx context.Context, event domain.AccountEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.ctxErr = ctx.Err()
	return r.err
}

func (r *recordingNotifier) types() []domain.AccountEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AccountEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type failingCountRepo struct {
	repository.AccountRepository
}

func (failingCountRepo) Count(context.Context, bool) (int, error) {
	return 0, errors.New("connection reset")
}

func newService(t *testing.T) (Service, *memory.Repository, *recordingNotifier) {
	t.Helper()
	repo := memory.New()
	n := &recordingNotifier{}
	svc := New(repo, n, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{MaxPageSize: 25})
	return svc, repo, n
}

func validInput(email string) CreateInput {
	return CreateInput{
		Email:     email,
		Password:  "correct horse",
		FirstName: "Ana",
		LastName:  "Silva",
		Phone:     "+351900000000",
		Interests: []string{"Yoga", "Spa"},
	}
}

func TestCreateHashesAndNotifies(t *testing.T) {
	svc, _, n := newService(t)

	created, err := svc.Create(context.Background(), validInput("Ana@Karoba.travel"))
	require.NoError(t, err)
	assert.Equal(t, "ana@karoba.travel", created.Email)
	assert.Equal(t, domain.RoleMember, created.Role)
	assert.NotEqual(t, []byte("correct horse"), created.CredentialHash)
	assert.NoError(t, crypto.ComparePassword(created.CredentialHash, "correct horse"))
	assert.Equal(t, []domain.AccountEventType{domain.AccountCreated}, n.types())
}

func TestCreateRequiresFields(t *testing.T) {
	svc, _, _ := newService(t)

	for _, field := range []string{"email", "password", "firstName", "lastName", "phone"} {
		in := validInput("ana@karoba.travel")
		switch field {
		case "email":
			in.Email = " "
		case "password":
			in.Password = ""
		case "firstName":
			in.FirstName = ""
		case "lastName":
			in.LastName = ""
		case "phone":
			in.Phone = ""
		}
		_, err := svc.Create(context.Background(), in)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, validInput("ANA@karoba.travel "))
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	count, err := repo.Count(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateSurvivesNotifierFailure(t *testing.T) {
	svc, repo, n := newService(t)
	n.err = errors.New("broker unreachable")

	created, err := svc.Create(context.Background(), validInput("ana@karoba.travel"))
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestNotificationContextOutlivesRequest(t *testing.T) {
	svc, _, n := newService(t)
	created, err := svc.Create(context.Background(), validInput("ana@karoba.travel"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	phone := "+1"
	_, err = svc.Update(ctx, created.ID, UpdateInput{Patch: domain.AccountPatch{Phone: &phone}})
	require.NoError(t, err)
	assert.NoError(t, n.ctxErr)
}

func TestListPaginates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := svc.Create(ctx, validInput(fmt.Sprintf("guest%02d@karoba.travel", i)))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, DefaultPageSize, page.Limit)
	assert.Equal(t, 12, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Accounts, 10)

	second, err := svc.List(ctx, ListInput{Page: 2, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, second.Accounts, 2)

	capped, err := svc.List(ctx, ListInput{Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, 25, capped.Limit)
}

func TestListRejectsPageBeyondAddressableOffset(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)

	_, err = svc.List(ctx, ListInput{Page: math.MaxInt/10 + 2, Limit: 10})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "page", verr.Field)

	last, err := svc.List(ctx, ListInput{Page: math.MaxInt/10 + 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, last.Accounts)
	assert.Equal(t, 1, last.Total)
}

func TestListPropagatesStoreErrors(t *testing.T) {
	svc := New(failingCountRepo{memory.New()}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{})
	_, err := svc.List(context.Background(), ListInput{})
	assert.ErrorContains(t, err, "count accounts")
}

func TestUpdateFieldsAndPasswordSeparately(t *testing.T) {
	svc, repo, n := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)

	interests := []string{"Hiking", "Spa"}
	password := "new secret"
	updated, err := svc.Update(ctx, created.ID, UpdateInput{
		Patch:    domain.AccountPatch{Interests: &interests},
		Password: &password,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hiking", "Spa"}, updated.Interests)
	assert.Equal(t, int64(3), updated.Version)

	stored, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.NoError(t, crypto.ComparePassword(stored.CredentialHash, "new secret"))
	assert.Equal(t, []domain.AccountEventType{domain.AccountCreated, domain.AccountUpdated}, n.types())
}

func TestUpdateRejectsEmptyPasswordAndStaleVersion(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)

	empty := ""
	_, err = svc.Update(ctx, created.ID, UpdateInput{Password: &empty})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	stale := int64(99)
	password := "rotated"
	_, err = svc.Update(ctx, created.ID, UpdateInput{Patch: domain.AccountPatch{ExpectedVersion: &stale}, Password: &password})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
}

func TestUpdateMissingAccount(t *testing.T) {
	svc, _, _ := newService(t)
	name := "Bo"
	_, err := svc.Update(context.Background(), "missing", UpdateInput{Patch: domain.AccountPatch{FirstName: &name}})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeactivateGuardsSelf(t *testing.T) {
	svc, _, n := newService(t)
	ctx := context.Background()
	admin, err := svc.Create(ctx, CreateInput{
		Email: "ops@karoba.travel", Password: "pw", FirstName: "Op", LastName: "S", Phone: "1", Role: domain.RoleAdministrator,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Deactivate(ctx, admin.ID, admin.ID), ErrSelfDeletion)
	still, err := svc.Get(ctx, admin.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)

	guest, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, admin.ID, guest.ID))
	assert.ErrorIs(t, svc.Deactivate(ctx, admin.ID, guest.ID), repository.ErrNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, admin.ID, "missing"), repository.ErrNotFound)
	assert.Contains(t, n.types(), domain.AccountDeactivated)
}

func TestUpdateProfileIgnoresPrivilegedFields(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, validInput("ana@karoba.travel"))
	require.NoError(t, err)

	role := domain.RoleAdministrator
	inactive := false
	verified := true
	last := "Costa"
	updated, err := svc.UpdateProfile(ctx, created.ID, domain.AccountPatch{
		LastName: &last, Role: &role, IsActive: &inactive, EmailVerified: &verified,
	})
	require.NoError(t, err)
	assert.Equal(t, "Costa", updated.LastName)
	assert.Equal(t, domain.RoleMember, updated.Role)
	assert.True(t, updated.IsActive)
	assert.False(t, updated.EmailVerified)

	profile, err := svc.Profile(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Costa", profile.LastName)
}

func TestEnsureAdministratorIsIdempotent(t *testing.T) {
	svc, repo, _ := newService(t)
	ctx := context.Background()
	in := CreateInput{Email: "root@karoba.travel", Password: "pw", FirstName: "Karoba", LastName: "Admin", Phone: "0"}

	first, err := svc.EnsureAdministrator(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdministrator, first.Role)

	second, err := svc.EnsureAdministrator(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := repo.Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNowOptionStampsEvents(t *testing.T) {
	at := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	n := &recordingNotifier{}
	svc := New(memory.New(), n, nil, Options{Now: func() time.Time { return at }})

	_, err := svc.Create(context.Background(), validInput("ana@karoba.travel"))
	require.NoError(t, err)
	require.Len(t, n.events, 1)
	assert.Equal(t, at, n.events[0].OccurredAt)
}
