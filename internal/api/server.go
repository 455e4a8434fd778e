package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"

	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
	"fluxmare/internal/chat"
	"fluxmare/internal/compare"
	"fluxmare/internal/estimation"
	"fluxmare/internal/observability"
	"fluxmare/internal/settings"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// maxBodyBytes bounds JSON request bodies. Backups get maxBackupBytes.
const (
	maxBodyBytes   = 1 << 20
	maxBackupBytes = 8 << 20
)

type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Deps are the services the HTTP layer drives.
type Deps struct {
	Store       storage.Store
	Auth        *auth.Authenticator
	Chats       *chat.Manager
	Responder   *chat.Responder
	History     *chat.InputHistory
	Estimator   *estimation.Estimator
	Comparisons *compare.List
	Settings    *settings.Service
	Audit       audit.AuditLogger
	Logger      observability.Logger
	Metrics     *observability.Metrics
	Now         func() time.Time
}

type Server struct {
	mux         *http.ServeMux
	store       storage.Store
	auth        *auth.Authenticator
	chats       *chat.Manager
	responder   *chat.Responder
	history     *chat.InputHistory
	estimator   *estimation.Estimator
	comparisons *compare.List
	settings    *settings.Service
	auditLogger audit.AuditLogger
	logger      observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	upgrader    websocket.Upgrader
}

// NewServer creates a new HTTP server with the given dependencies.
// A nil logger falls back to the default logger and a nil audit logger to
// an in-memory one.
func NewServer(mux *http.ServeMux, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.DefaultConfig())
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewMemoryAuditLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		mux:         mux,
		store:       deps.Store,
		auth:        deps.Auth,
		chats:       deps.Chats,
		responder:   deps.Responder,
		history:     deps.History,
		estimator:   deps.Estimator,
		comparisons: deps.Comparisons,
		settings:    deps.Settings,
		auditLogger: deps.Audit,
		logger:      deps.Logger.WithComponent("api"),
		metrics:     deps.Metrics,
		now:         deps.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) writeErr(ctx context.Context, w http.ResponseWriter, code int, msg string, detail string) {
	fields := []any{
		"status", code,
		"error", msg,
	}
	if detail != "" {
		fields = append(fields, "detail", detail)
	}
	if code >= 500 {
		s.logger.ErrorContext(ctx, "request failed", fields...)
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s (detail: %s)", code, msg, detail))
		} else {
			sentry.CaptureMessage(fmt.Sprintf("HTTP %d: %s (detail: %s)", code, msg, detail))
		}
	} else {
		s.logger.WarnContext(ctx, "request failed", fields...)
	}
	writeJSON(w, code, apiError{Error: msg, Detail: detail})
}

// validationResponse is the 400 body for feature form errors.
type validationResponse struct {
	apiError
	Kind    string   `json:"kind"`
	Fields  []string `json:"fields,omitempty"`
	Missing int      `json:"missing,omitempty"`
}

// writeStoreErr maps a service error to the appropriate HTTP status code
// and writes the error response. Sentinel errors from the storage, validation
// and auth packages are detected with errors.Is and errors.As; anything else
// is a 500.
func (s *Server) writeStoreErr(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		missing *validation.MissingFieldsError
		rng     *validation.OutOfRangeError
		field   *validation.FieldError
	)
	switch {
	case errors.As(err, &missing):
		fields := make([]string, len(missing.Fields))
		for i, f := range missing.Fields {
			fields[i] = string(f)
		}
		s.logger.WarnContext(ctx, "request failed", "status", http.StatusBadRequest, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, validationResponse{
			apiError: apiError{Error: "missing fields", Detail: err.Error()},
			Kind:     "missing_fields",
			Fields:   fields,
			Missing:  missing.Count,
		})
	case errors.As(err, &rng):
		s.logger.WarnContext(ctx, "request failed", "status", http.StatusBadRequest, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, validationResponse{
			apiError: apiError{Error: "value out of range", Detail: err.Error()},
			Kind:     "out_of_range",
			Fields:   []string{string(rng.Field)},
		})
	case errors.As(err, &field):
		s.logger.WarnContext(ctx, "request failed", "status", http.StatusBadRequest, "error", err.Error())
		writeJSON(w, http.StatusBadRequest, validationResponse{
			apiError: apiError{Error: "invalid format", Detail: err.Error()},
			Kind:     "invalid_format",
			Fields:   []string{string(field.Field)},
		})
	case errors.Is(err, storage.ErrNotFound):
		s.writeErr(ctx, w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, storage.ErrConflict):
		s.writeErr(ctx, w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, storage.ErrValidation),
		errors.Is(err, validation.ErrEmptyValue),
		errors.Is(err, validation.ErrTooLong),
		errors.Is(err, validation.ErrInvalidFormat),
		errors.Is(err, auth.ErrInvalidRegistration),
		errors.Is(err, auth.ErrMissingCredentials):
		s.writeErr(ctx, w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.writeErr(ctx, w, http.StatusUnauthorized, "invalid credentials", "")
	case errors.Is(err, auth.ErrForbidden):
		s.writeErr(ctx, w, http.StatusForbidden, "forbidden", "")
	case errors.Is(err, chat.ErrResponderClosed):
		s.writeErr(ctx, w, http.StatusServiceUnavailable, "shutting down", "")
	default:
		s.writeErr(ctx, w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v alone.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// logAudit records an event for handlers whose resource is not derivable
// from the request path.
func (s *Server) logAudit(ctx context.Context, action, resourceType, resourceID string, statusCode int) {
	if s.auditLogger == nil {
		return
	}
	actor, actorType := actorFromContext(ctx)
	event := &audit.AuditEvent{
		Actor:        actor,
		ActorType:    actorType,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    RequestIDFromContext(ctx),
		StatusCode:   statusCode,
	}
	if err := s.auditLogger.Log(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to log audit event", "error", err)
	}
}

func actorFromContext(ctx context.Context) (string, string) {
	ident, ok := auth.IdentityFromContext(ctx)
	switch {
	case !ok:
		return "anonymous", audit.ActorTypeAnonymous
	case ident.IsAdmin():
		return ident.Username, audit.ActorTypeAdmin
	default:
		return ident.Username, audit.ActorTypeUser
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) { s.status = code; s.ResponseWriter.WriteHeader(code) }

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack lets the comparison stream upgrade through the middleware chain.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// RouteOption customizes RegisterRoutes.
type RouteOption func(*routeConfig)

type routeConfig struct {
	loginRateLimit Middleware
	csrf           bool
}

// WithLoginRateLimit wraps the login and register endpoints with mw.
func WithLoginRateLimit(mw Middleware) RouteOption {
	return func(c *routeConfig) { c.loginRateLimit = mw }
}

// WithCSRF enables double-submit CSRF checks on cookie-authenticated writes.
func WithCSRF() RouteOption {
	return func(c *routeConfig) { c.csrf = true }
}

// RegisterRoutes registers all HTTP routes. Health, metrics, the OpenAPI
// document and login/register are public; every other /api/v1 route
// requires a session and the matching RBAC permission.
func (s *Server) RegisterRoutes(opts ...RouteOption) {
	var cfg routeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	slogger := s.logger.Slog()
	sessionMW := SessionAuthMiddleware(s.auth, slogger)
	auditMW := AuditMiddleware(s.auditLogger, slogger)
	chain := []Middleware{sessionMW}
	if cfg.csrf {
		chain = append(chain, CSRFMiddleware())
	}
	chain = append(chain, auditMW)

	protect := func(resource, action string, h http.HandlerFunc) http.Handler {
		mws := append(append([]Middleware{}, chain...), RequirePermissionMiddleware(resource, action, slogger))
		return ApplyMiddlewares(h, mws...)
	}
	public := func(h http.HandlerFunc) http.Handler {
		if cfg.loginRateLimit != nil {
			return ApplyMiddlewares(h, cfg.loginRateLimit, auditMW)
		}
		return ApplyMiddlewares(h, auditMW)
	}

	// Public endpoints (no auth required)
	s.mux.HandleFunc("GET /openapi.yaml", s.handleOpenAPISpec)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
	s.mux.Handle("POST /api/v1/auth/login", public(s.handleLogin))
	s.mux.Handle("POST /api/v1/auth/register", public(s.handleRegister))

	// Logout works with or without a live session.
	s.mux.Handle("POST /api/v1/auth/logout", ApplyMiddlewares(http.HandlerFunc(s.handleLogout),
		OptionalSessionMiddleware(s.auth, slogger), auditMW))
	s.mux.Handle("GET /api/v1/auth/me", ApplyMiddlewares(http.HandlerFunc(s.handleMe), sessionMW))

	const (
		conv = auth.ResourceConversations
		cmp  = auth.ResourceComparisons
		set  = auth.ResourceSettings
	)

	s.mux.Handle("POST /api/v1/estimate", protect(auth.ResourceEstimates, auth.ActionCreate, s.handleEstimate))

	s.mux.Handle("GET /api/v1/conversations", protect(conv, auth.ActionList, s.handleListConversations))
	s.mux.Handle("POST /api/v1/conversations", protect(conv, auth.ActionCreate, s.handleCreateConversation))
	s.mux.Handle("DELETE /api/v1/conversations", protect(conv, auth.ActionDelete, s.handleClearConversations))
	s.mux.Handle("GET /api/v1/conversations/{id}", protect(conv, auth.ActionRead, s.handleGetConversation))
	s.mux.Handle("DELETE /api/v1/conversations/{id}", protect(conv, auth.ActionDelete, s.handleDeleteConversation))
	s.mux.Handle("POST /api/v1/conversations/{id}/favorite", protect(conv, auth.ActionUpdate, s.handleToggleFavorite))
	s.mux.Handle("POST /api/v1/conversations/{id}/activate", protect(conv, auth.ActionUpdate, s.handleActivateConversation))
	s.mux.Handle("GET /api/v1/conversations/{id}/export", protect(conv, auth.ActionRead, s.handleExportConversation))
	s.mux.Handle("POST /api/v1/messages", protect(conv, auth.ActionCreate, s.handleSubmitMessage))
	s.mux.Handle("GET /api/v1/dashboards", protect(conv, auth.ActionList, s.handleListDashboards))
	s.mux.Handle("GET /api/v1/inputs", protect(conv, auth.ActionList, s.handleListInputs))
	s.mux.Handle("GET /api/v1/inputs/{id}", protect(conv, auth.ActionRead, s.handleGetInput))
	s.mux.Handle("DELETE /api/v1/inputs", protect(conv, auth.ActionDelete, s.handleClearInputs))
	s.mux.Handle("GET /api/v1/suggestions", protect(conv, auth.ActionRead, s.handleSuggestions))

	s.mux.Handle("GET /api/v1/comparisons", protect(cmp, auth.ActionList, s.handleListComparisons))
	s.mux.Handle("POST /api/v1/comparisons", protect(cmp, auth.ActionCreate, s.handleAddComparison))
	s.mux.Handle("DELETE /api/v1/comparisons", protect(cmp, auth.ActionDelete, s.handleClearComparisons))
	s.mux.Handle("DELETE /api/v1/comparisons/{index}", protect(cmp, auth.ActionDelete, s.handleRemoveComparison))
	s.mux.Handle("GET /api/v1/comparisons/stream", protect(cmp, auth.ActionRead, s.handleComparisonStream))

	s.mux.Handle("GET /api/v1/settings", protect(set, auth.ActionRead, s.handleGetSettings))
	s.mux.Handle("PATCH /api/v1/settings", protect(set, auth.ActionUpdate, s.handlePatchSettings))
	s.mux.Handle("GET /api/v1/settings/theme", protect(set, auth.ActionRead, s.handleGetTheme))
	s.mux.Handle("PUT /api/v1/settings/theme", protect(set, auth.ActionUpdate, s.handlePutTheme))
	s.mux.Handle("GET /api/v1/settings/backup", protect(set, auth.ActionRead, s.handleExportBackup))
	s.mux.Handle("POST /api/v1/settings/backup", protect(set, auth.ActionUpdate, s.handleImportBackup))

	s.mux.Handle("GET /api/v1/admin/overview", protect(auth.ResourceAdmin, auth.ActionRead, s.handleAdminOverview))
	s.mux.Handle("GET /api/v1/admin/audit", protect(auth.ResourceAdmin, auth.ActionRead, s.handleAuditList))
	s.mux.Handle("GET /api/v1/admin/test-sentry", protect(auth.ResourceAdmin, auth.ActionRead, s.handleTestSentry))
}
