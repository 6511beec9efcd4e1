package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/repository"
	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/pkg/config"
	"github.com/karoba/wellness/pkg/crypto"
	jwtpkg "github.com/karoba/wellness/pkg/jwt"
)

var (
	// ErrUnauthorized means no valid caller identity could be resolved.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden means the caller lacks the required role.
	ErrForbidden = errors.New("auth: forbidden")
)

// Caller is the authenticated identity attached to a request.
type Caller struct {
	ID    string
	Email string
	Role  domain.Role
}

// IsAdministrator reports whether the caller holds the administrator role.
func (c Caller) IsAdministrator() bool {
	return c.Role == domain.RoleAdministrator
}

// Service handles authentication workflows.
type Service struct {
	users    repository.AccountRepository
	accounts account.Service
	logger   *slog.Logger
	cfg      config.APIConfig
}

// New constructs a Service.
func New(users repository.AccountRepository, accounts account.Service, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, accounts: accounts, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Register creates a member account and signs it in.
func (s Service) Register(ctx context.Context, in account.CreateInput) (*domain.Account, TokenPair, error) {
	in.Role = domain.RoleMember
	created, err := s.accounts.Create(ctx, in)
	if err != nil {
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(created.ID, created.Email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", created.ID)
	return created, tokens, nil
}

// Login authenticates an active account. Unknown, inactive and wrong-password
// attempts are indistinguishable to the caller.
func (s Service) Login(ctx context.Context, email, password string) (*domain.Account, TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthorized
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.CredentialHash, password); err != nil {
		return nil, TokenPair{}, ErrUnauthorized
	}
	tokens, err := s.issueTokens(user.ID, user.Email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		s.logger.Warn("record login failed", "user_id", user.ID, "error", err)
	} else {
		now := time.Now().UTC()
		user.LastLogin = &now
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Authorize validates an access token and resolves the caller from the store,
// so deactivation and role changes apply on the next request.
func (s Service) Authorize(ctx context.Context, token string) (Caller, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Caller{}, ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.TokenType != jwtpkg.TypeAccess {
		return Caller{}, fmt.Errorf("%w: %s token is not a bearer credential", ErrUnauthorized, claims.TokenType)
	}
	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Caller{}, ErrUnauthorized
		}
		return Caller{}, err
	}
	return Caller{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

// RequireRole returns ErrForbidden unless caller holds role.
// Every authenticated caller satisfies RoleMember.
func (s Service) RequireRole(caller Caller, role domain.Role) error {
	if caller.ID == "" {
		return ErrUnauthorized
	}
	if role == domain.RoleMember || caller.Role == role {
		return nil
	}
	return ErrForbidden
}

func (s Service) issueTokens(userID, email string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, email, jwtpkg.TypeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, email, jwtpkg.TypeRefresh, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.cfg.AccessTokenTTL}, nil
}
