package httpx

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/karoba/wellness/internal/service/account"
	"github.com/karoba/wellness/internal/service/auth"
	"github.com/karoba/wellness/internal/ws"
)

const (
	rateWindowDefault  = time.Minute
	rateLimitAuth      = 20
	rateLimitUser      = 120
	healthCheckTimeout = 2 * time.Second
)

// Options carries the router's optional collaborators and limits.
// AuthRateLimit and UserRateLimit count requests per RateWindow; zero
// selects the default and a negative value disables that limit.
type Options struct {
	Limiter       RateLimiter
	AuthRateLimit int
	UserRateLimit int
	RateWindow    time.Duration
	AllowedOrigin string
	DBHealth      func(context.Context) error
	Hub           *ws.Hub
	Registerer    prometheus.Registerer
	Gatherer      prometheus.Gatherer
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *mux.Router
	handler    http.Handler
	logger     *slog.Logger
	auth       auth.Service
	accounts   account.Service
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	authLimit  int
	userLimit  int
	rateWindow time.Duration
	dbHealth   func(context.Context) error
	gatherer   prometheus.Gatherer
	metrics    routerMetrics
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc auth.Service, accountSvc account.Service, opts Options) *Router {
	if opts.AuthRateLimit == 0 {
		opts.AuthRateLimit = rateLimitAuth
	}
	if opts.UserRateLimit == 0 {
		opts.UserRateLimit = rateLimitUser
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = rateWindowDefault
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	r := &Router{
		mux:      mux.NewRouter(),
		logger:   logger,
		auth:     authSvc,
		accounts: accountSvc,
		hub:      opts.Hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		limiter:    opts.Limiter,
		authLimit:  opts.AuthRateLimit,
		userLimit:  opts.UserRateLimit,
		rateWindow: opts.RateWindow,
		dbHealth:   opts.DBHealth,
		gatherer:   opts.Gatherer,
		metrics:    newRouterMetrics(opts.Registerer),
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	var origins []string
	if origin := strings.TrimSpace(opts.AllowedOrigin); origin != "" {
		origins = append(origins, origin)
		r.upgrader.CheckOrigin = func(req *http.Request) bool {
			o := req.Header.Get("Origin")
			return o == "" || o == origin
		}
	}
	r.register()
	r.handler = cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
	}).Handler(r.mux)
	return r
}

// ServeHTTP delegates to the CORS-wrapped mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit(r.handleHealthz)).Methods(http.MethodGet)
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.mux.HandleFunc("/auth/login", r.audit(r.withRateLimit("/auth/login", r.authLimit, rateLimitKeyIP, r.handleLogin))).Methods(http.MethodPost)
	r.mux.HandleFunc("/auth/register", r.audit(r.withRateLimit("/auth/register", r.authLimit, rateLimitKeyIP, r.handleRegister))).Methods(http.MethodPost)

	// /users/profile must be matched before /users/{id}.
	r.mux.HandleFunc("/users/profile", r.audit(r.authenticated("/users/profile", r.handleGetProfile))).Methods(http.MethodGet)
	r.mux.HandleFunc("/users/profile", r.audit(r.authenticated("/users/profile", r.handleUpdateProfile))).Methods(http.MethodPut)

	r.mux.HandleFunc("/users", r.audit(r.admin("/users", r.handleListUsers))).Methods(http.MethodGet)
	r.mux.HandleFunc("/users", r.audit(r.admin("/users", r.handleCreateUser))).Methods(http.MethodPost)
	r.mux.HandleFunc("/users/{id}", r.audit(r.admin("/users/{id}", r.handleGetUser))).Methods(http.MethodGet)
	r.mux.HandleFunc("/users/{id}", r.audit(r.admin("/users/{id}", r.handleUpdateUser))).Methods(http.MethodPut)
	r.mux.HandleFunc("/users/{id}", r.audit(r.admin("/users/{id}", r.handleDeleteUser))).Methods(http.MethodDelete)

	if r.hub != nil {
		r.mux.HandleFunc("/ws/accounts", r.audit(r.admin("/ws/accounts", r.handleAccountFeed))).Methods(http.MethodGet)
	}

	r.mux.NotFoundHandler = r.audit(r.notFound)
	r.mux.MethodNotAllowedHandler = r.audit(r.methodNotAllowed)
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var payload credentialsRequest
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, kindUnauthorized, "invalid email or password")
			return
		}
		r.writeServiceError(w, req, "login", err)
		return
	}
	writeData(w, http.StatusOK, newSessionView(user, tokens), "login successful")
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var payload createRequest
	if !r.decodeJSON(w, req, &payload) {
		return
	}
	user, tokens, err := r.auth.Register(req.Context(), payload.input())
	if err != nil {
		r.writeServiceError(w, req, "register", err)
		return
	}
	writeData(w, http.StatusCreated, newSessionView(user, tokens), "account registered")
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("database health check failed", "error", err)
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, routeLabel(req), status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if caller, ok := CallerFromContext(ctx); ok {
			actor = string(caller.Role)
			fields = append(fields, "user_id", caller.ID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

func routeLabel(req *http.Request) string {
	if route := mux.CurrentRoute(req); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func applyRateHeaders(w http.ResponseWriter, limit int, decision RateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.Count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.WindowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.WindowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, kindMethodNotAllow, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, kindNotFound, "route not found")
}
