package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
)

const (
	uniqueViolation = "23505"
	emailIndex      = "accounts_email_key"
)

const accountColumns = `id, email, credential_hash, first_name, last_name, phone, birth_date,
	interests, role, is_active, email_verified, version, created_at, updated_at, last_login`

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Repository implements repository.AccountRepository on PostgreSQL.
type Repository struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Repository.
func New(db DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{db: db, logger: logger, now: time.Now}
}

var _ repository.AccountRepository = (*Repository)(nil)

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Create inserts a new active account and returns it as stored.
func (r *Repository) Create(ctx context.Context, account domain.NewAccount) (*domain.Account, error) {
	account.Normalize()
	if err := account.Validate(); err != nil {
		return nil, err
	}
	interests, err := domain.EncodeInterests(account.Interests)
	if err != nil {
		return nil, fmt.Errorf("encode interests: %w", err)
	}
	id := uuid.NewString()
	now := r.now().UTC()

	const query = `INSERT INTO accounts (id, email, credential_hash, first_name, last_name, phone,
		birth_date, interests, role, is_active, email_verified, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, FALSE, 1, $10, $10)`
	if _, err := r.db.Exec(ctx, query, id, account.Email, account.CredentialHash, account.FirstName,
		account.LastName, account.Phone, dateToNil(account.BirthDate), interests, string(account.Role), now); err != nil {
		if isDuplicateEmail(err) {
			return nil, repository.ErrDuplicateEmail
		}
		return nil, err
	}

	created, err := r.get(ctx, id, false)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrCreationFailed
	}
	return created, err
}

// FindByID returns an active account.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.get(ctx, id, true)
}

// FindByEmail returns an active account by normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 AND is_active = TRUE`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

// Update applies the supplied fields, bumps the version and returns the
// refreshed row. An empty patch performs no write.
func (r *Repository) Update(ctx context.Context, id string, patch domain.AccountPatch) (*domain.Account, error) {
	patch.Normalize()
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return r.get(ctx, id, false)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.BirthDate != nil {
		set("birth_date", *patch.BirthDate)
	}
	if patch.ClearBirthDate {
		set("birth_date", nil)
	}
	if patch.Interests != nil {
		encoded, err := domain.EncodeInterests(*patch.Interests)
		if err != nil {
			return nil, fmt.Errorf("encode interests: %w", err)
		}
		set("interests", encoded)
	}
	if patch.EmailVerified != nil {
		set("email_verified", *patch.EmailVerified)
	}
	if patch.IsActive != nil {
		set("is_active", *patch.IsActive)
	}
	if patch.Role != nil {
		set("role", string(*patch.Role))
	}
	set("updated_at", r.now().UTC())
	sets = append(sets, "version = version + 1")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if patch.ExpectedVersion != nil {
		args = append(args, *patch.ExpectedVersion)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		if patch.ExpectedVersion != nil {
			if _, err := r.get(ctx, id, false); err == nil {
				return nil, repository.ErrVersionConflict
			} else if !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
		return nil, repository.ErrNotFound
	}
	return r.get(ctx, id, false)
}

// UpdateCredential overwrites the stored credential hash.
func (r *Repository) UpdateCredential(ctx context.Context, id string, credentialHash []byte) error {
	if len(credentialHash) == 0 {
		return &domain.ValidationError{Field: "password", Reason: "is required"}
	}
	const query = `UPDATE accounts SET credential_hash = $1, updated_at = $2, version = version + 1 WHERE id = $3`
	return r.execOne(ctx, query, credentialHash, r.now().UTC(), id)
}

// RecordLogin stamps last_login without touching updated_at.
func (r *Repository) RecordLogin(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET last_login = $1 WHERE id = $2`
	return r.execOne(ctx, query, r.now().UTC(), id)
}

// Deactivate soft-deletes an account. Repeated calls succeed.
func (r *Repository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET is_active = FALSE, updated_at = $1, version = version + 1 WHERE id = $2`
	return r.execOne(ctx, query, r.now().UTC(), id)
}

// List returns accounts newest first.
func (r *Repository) List(ctx context.Context, filter repository.ListFilter) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	if !filter.IncludeInactive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// Count returns the number of accounts matching the filter.
func (r *Repository) Count(ctx context.Context, includeInactive bool) (int, error) {
	query := `SELECT COUNT(*) FROM accounts`
	if !includeInactive {
		query += ` WHERE is_active = TRUE`
	}
	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) get(ctx context.Context, id string, activeOnly bool) (*domain.Account, error) {
	if id == "" {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) scanOne(row pgx.Row) (*domain.Account, error) {
	account, err := r.scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

func (r *Repository) scan(row pgx.Row) (*domain.Account, error) {
	var (
		a         domain.Account
		role      string
		interests string
		birthDate pgtype.Date
		lastLogin pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.Email, &a.CredentialHash, &a.FirstName, &a.LastName, &a.Phone,
		&birthDate, &interests, &role, &a.IsActive, &a.EmailVerified, &a.Version,
		&a.CreatedAt, &a.UpdatedAt, &lastLogin); err != nil {
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Interests = repository.DecodeInterests(r.logger, a.ID, interests)
	if birthDate.Valid {
		d := time.Date(birthDate.Time.Year(), birthDate.Time.Month(), birthDate.Time.Day(), 0, 0, 0, 0, time.UTC)
		a.BirthDate = &d
	}
	if lastLogin.Valid {
		t := lastLogin.Time.UTC()
		a.LastLogin = &t
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func isDuplicateEmail(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return pgErr.ConstraintName == "" || pgErr.ConstraintName == emailIndex
}

func dateToNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
