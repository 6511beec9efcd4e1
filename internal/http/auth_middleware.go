package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/karoba/wellness/internal/domain"
	"github.com/karoba/wellness/internal/service/auth"
)

type callerContextKey struct{}

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth resolves the caller once and stores it in the request context.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, _, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// requireAdmin rejects callers without the administrator role. It must run after requireAuth.
func (r *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		caller, _ := CallerFromContext(req.Context())
		if err := r.auth.RequireRole(caller, domain.RoleAdministrator); err != nil {
			r.logger.Warn("role check failed", "user_id", caller.ID, "path", req.URL.Path)
			r.writeServiceError(w, req, "authorize", err)
			return
		}
		next(w, req)
	}
}

// ensureAuth validates the bearer token and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, auth.Caller, bool) {
	token, err := requestToken(req)
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "authentication required")
		return req.Context(), auth.Caller{}, false
	}
	caller, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			r.writeServiceError(w, req, "authorize", err)
			return req.Context(), auth.Caller{}, false
		}
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, kindUnauthorized, "authentication failed")
		return req.Context(), auth.Caller{}, false
	}
	return WithCaller(req.Context(), caller), caller, true
}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller auth.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (auth.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(auth.Caller)
	return caller, ok && caller.ID != ""
}

// requestToken reads the bearer token. Browsers cannot set headers on
// websocket handshakes, so upgrades may pass it as access_token instead.
func requestToken(req *http.Request) (string, error) {
	header := req.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" && websocket.IsWebSocketUpgrade(req) {
		if token := strings.TrimSpace(req.URL.Query().Get("access_token")); token != "" {
			return token, nil
		}
	}
	return bearerToken(header)
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}
