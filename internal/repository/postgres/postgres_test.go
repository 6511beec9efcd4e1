package postgres

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
)

var columns = []string{"id", "email", "credential_hash", "first_name", "last_name", "phone", "birth_date",
	"interests", "role", "is_active", "email_verified", "version", "created_at", "updated_at", "last_login"}

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo := New(mock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo.now = func() time.Time { return fixedNow }
	return repo, mock
}

func accountRow(mock pgxmock.PgxPoolIface, id string, active bool, interests string) *pgxmock.Rows {
	return mock.NewRows(columns).AddRow(id, "ana@karoba.travel", []byte("$2a$hash"), "Ana", "Silva", "+351900000000",
		time.Date(1990, 3, 4, 0, 0, 0, 0, time.UTC), interests, "member", active, false, int64(1),
		fixedNow, fixedNow, nil)
}

func TestCreateInsertsAndRereads(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WithArgs(pgxmock.AnyArg(), "ana@karoba.travel", []byte("$2a$hash"), "Ana", "Silva", "+351900000000",
			nil, `["Yoga","Spa"]`, "member", fixedNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(accountRow(mock, "acc-1", true, `["Yoga","Spa"]`))

	account, err := repo.Create(context.Background(), domain.NewAccount{
		Email:          "  Ana@Karoba.Travel ",
		CredentialHash: []byte("$2a$hash"),
		FirstName:      "Ana",
		LastName:       "Silva",
		Phone:          "+351900000000",
		Interests:      []string{"Yoga", " ", "Spa"},
	})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, []string{"Yoga", "Spa"}, account.Interests)
	assert.True(t, account.IsActive)
	assert.Equal(t, domain.RoleMember, account.Role)
	require.NotNil(t, account.BirthDate)
	assert.Equal(t, "1990-03-04", account.BirthDate.Format(time.DateOnly))
	assert.Nil(t, account.LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := repo.Create(context.Background(), domain.NewAccount{
		Email: "ana@karoba.travel", CredentialHash: []byte("h"), FirstName: "Ana", LastName: "Silva", Phone: "1",
	})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReportsUnreadableInsert(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accounts")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows(columns))

	_, err := repo.Create(context.Background(), domain.NewAccount{
		Email: "ana@karoba.travel", CredentialHash: []byte("h"), FirstName: "Ana", LastName: "Silva", Phone: "1",
	})
	assert.ErrorIs(t, err, repository.ErrCreationFailed)
}

func TestCreateRejectsInvalidInputWithoutQuery(t *testing.T) {
	repo, mock := newMockRepo(t)

	_, err := repo.Create(context.Background(), domain.NewAccount{Email: "nope", CredentialHash: []byte("h")})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email", verr.Field)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDFiltersInactive(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND is_active = TRUE")).
		WithArgs("missing").
		WillReturnRows(mock.NewRows(columns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmailNormalizes(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1 AND is_active = TRUE")).
		WithArgs("ana@karoba.travel").
		WillReturnRows(accountRow(mock, "acc-1", true, `[]`))

	account, err := repo.FindByEmail(context.Background(), " ANA@karoba.travel")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)
	assert.Equal(t, []string{}, account.Interests)
}

func TestReadToleratesCorruptInterests(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs("acc-1").
		WillReturnRows(accountRow(mock, "acc-1", true, `Yoga, Spa`))

	account, err := repo.FindByID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.NotNil(t, account.Interests)
	assert.Empty(t, account.Interests)
}

func TestUpdateBuildsPartialStatement(t *testing.T) {
	repo, mock := newMockRepo(t)
	first := " Ana Maria "
	interests := []string{"Yoga", "Spa"}

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE accounts SET first_name = $1, interests = $2, updated_at = $3, version = version + 1 WHERE id = $4")).
		WithArgs("Ana Maria", `["Yoga","Spa"]`, fixedNow, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("acc-1").
		WillReturnRows(accountRow(mock, "acc-1", true, `["Yoga","Spa"]`))

	account, err := repo.Update(context.Background(), "acc-1", domain.AccountPatch{FirstName: &first, Interests: &interests})
	require.NoError(t, err)
	assert.Equal(t, []string{"Yoga", "Spa"}, account.Interests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmptyPatchOnlyRereads(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("acc-1").
		WillReturnRows(accountRow(mock, "acc-1", false, `[]`))

	account, err := repo.Update(context.Background(), "acc-1", domain.AccountPatch{})
	require.NoError(t, err)
	assert.False(t, account.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateVersionConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	phone := "+1"
	expected := int64(3)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $3 AND version = $4")).
		WithArgs("+1", fixedNow, "acc-1", int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts WHERE id = $1")).
		WithArgs("acc-1").
		WillReturnRows(accountRow(mock, "acc-1", true, `[]`))

	_, err := repo.Update(context.Background(), "acc-1", domain.AccountPatch{Phone: &phone, ExpectedVersion: &expected})
	assert.ErrorIs(t, err, repository.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	phone := "+1"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET phone = $1")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := repo.Update(context.Background(), "ghost", domain.AccountPatch{Phone: &phone})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeactivateIsIdempotentAndReportsMissing(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE")).
		WithArgs(fixedNow, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE")).
		WithArgs(fixedNow, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = FALSE")).
		WithArgs(fixedNow, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.Deactivate(context.Background(), "acc-1"))
	require.NoError(t, repo.Deactivate(context.Background(), "acc-1"))
	assert.ErrorIs(t, repo.Deactivate(context.Background(), "ghost"), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCredentialAndRecordLogin(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("SET credential_hash = $1")).
		WithArgs([]byte("new"), fixedNow, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("SET last_login = $1 WHERE id = $2")).
		WithArgs(fixedNow, "acc-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.UpdateCredential(context.Background(), "acc-1", []byte("new")))
	require.NoError(t, repo.RecordLogin(context.Background(), "acc-1"))
	assert.Error(t, repo.UpdateCredential(context.Background(), "acc-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPushesPagingIntoSQL(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE is_active = TRUE ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2")).
		WithArgs(10, 20).
		WillReturnRows(accountRow(mock, "acc-2", true, `[]`).AddRow("acc-1", "bo@karoba.travel", []byte("h"),
			"Bo", "Lee", "2", nil, `["Spa"]`, "administrator", true, true, int64(4), fixedNow, fixedNow, fixedNow))

	accounts, err := repo.List(context.Background(), repository.ListFilter{Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, domain.RoleAdministrator, accounts[1].Role)
	assert.Nil(t, accounts[1].BirthDate)
	require.NotNil(t, accounts[1].LastLogin)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListIncludeInactiveAndCount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM accounts ORDER BY created_at DESC")).
		WithArgs(nil, 0).
		WillReturnRows(accountRow(mock, "acc-1", false, `[]`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM accounts WHERE is_active = TRUE")).
		WillReturnRows(mock.NewRows([]string{"count"}).AddRow(7))

	accounts, err := repo.List(context.Background(), repository.ListFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.False(t, accounts[0].IsActive)

	count, err := repo.Count(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
