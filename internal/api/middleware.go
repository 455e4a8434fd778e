package api

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
	"fluxmare/internal/cidr"
	"fluxmare/internal/observability"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader        = "X-Request-ID"
	maxRequestIDLength     = 64
	rateLimiterVisitorTTL  = 5 * time.Minute
	defaultRateLimitRPS    = 100.0
	defaultRateLimitBurst  = 200
	minimumCleanupInterval = 30 * time.Second
	sessionCookieName      = "session"
)

// Middleware represents an HTTP middleware that wraps a handler.
type Middleware func(http.Handler) http.Handler

// ApplyMiddlewares applies the provided middleware in order, where the first middleware
// in the list is the outermost handler.
func ApplyMiddlewares(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RateLimitConfig configures the token bucket rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	Proxies           *TrustedProxyConfig
}

// Enabled reports whether rate limiting should be enforced.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerSecond > 0 && c.Burst > 0
}

// DefaultRateLimitConfig returns 100 RPS with a burst of 200.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: defaultRateLimitRPS,
		Burst:             defaultRateLimitBurst,
	}
}

// RequestIDMiddleware ensures every request carries a stable request ID.
func RequestIDMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := sanitizeRequestID(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = uuid.New().String()
			}
			ctx := WithRequestID(r.Context(), requestID)
			r = r.WithContext(ctx)
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r)
		})
	}
}

func sanitizeRequestID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" || len(id) > maxRequestIDLength {
		return ""
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return ""
		}
	}
	return id
}

// LoggingMiddleware records structured request logs and wires Sentry tracing.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			hub := sentry.GetHubFromContext(ctx)
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
				ctx = sentry.SetHubOnContext(ctx, hub)
				r = r.WithContext(ctx)
			}

			transaction := sentry.StartTransaction(
				ctx,
				fmt.Sprintf("%s %s", r.Method, r.URL.Path),
				sentry.WithOpName("http.server"),
				sentry.ContinueFromRequest(r),
				sentry.WithTransactionSource(sentry.SourceURL),
			)
			defer transaction.Finish()
			r = r.WithContext(transaction.Context())
			ctx = r.Context()

			hub.Scope().SetRequest(r)
			hub.Scope().SetContext("request", map[string]any{
				"url":    r.URL.String(),
				"method": r.Method,
			})

			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			var panicRecovered any

			defer func() {
				if rec := recover(); rec != nil {
					panicRecovered = rec
					transaction.Status = sentry.SpanStatusInternalError
					hub.RecoverWithContext(ctx, rec)
					attrs := appendRequestID(ctx, []any{
						"method", r.Method,
						"path", r.URL.Path,
					})
					attrs = append(attrs, "panic", rec)
					logger.ErrorContext(ctx, "panic recovered", attrs...)
					writeJSON(recorder, http.StatusInternalServerError, apiError{Error: "internal server error"})
				}
			}()

			next.ServeHTTP(recorder, r)

			if panicRecovered != nil {
				return
			}

			transaction.Status = sentry.HTTPtoSpanStatus(recorder.status)
			duration := time.Since(start)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.status,
				"duration_ms", duration.Milliseconds(),
			}
			attrs = appendRequestID(r.Context(), attrs)

			switch {
			case recorder.status >= 500:
				logger.ErrorContext(r.Context(), "request completed", attrs...)
			case recorder.status >= 400:
				logger.WarnContext(r.Context(), "request completed", attrs...)
			default:
				logger.InfoContext(r.Context(), "request completed", attrs...)
			}
		})
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware enforces per-client rate limiting using a token bucket.
// It adds the following headers to all responses:
//   - X-RateLimit-Limit: maximum requests per second
//   - X-RateLimit-Remaining: approximate remaining tokens
//   - X-RateLimit-Reset: Unix timestamp when a token will be available
//
// When the rate limit is exceeded, it returns 429 Too Many Requests with a Retry-After header.
func RateLimitMiddleware(cfg RateLimitConfig, logger *slog.Logger) Middleware {
	if !cfg.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu          sync.Mutex
		visitors    = make(map[string]*clientLimiter)
		lastCleanup time.Time
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			key := clientKeyWithProxies(r, cfg.Proxies)

			mu.Lock()
			v, ok := visitors[key]
			if !ok {
				v = &clientLimiter{
					limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
					lastSeen: now,
				}
				visitors[key] = v
			} else {
				v.lastSeen = now
			}

			if lastCleanup.IsZero() || now.Sub(lastCleanup) > minimumCleanupInterval {
				for k, limiter := range visitors {
					if now.Sub(limiter.lastSeen) > rateLimiterVisitorTTL {
						delete(visitors, k)
					}
				}
				lastCleanup = now
			}
			mu.Unlock()

			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64))

			remaining := max(int(math.Floor(v.limiter.Tokens())), 0)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			resetTime := now.Add(time.Duration(float64(time.Second) / cfg.RequestsPerSecond))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if !v.limiter.AllowN(now, 1) {
				attrs := appendRequestID(r.Context(), []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", http.StatusTooManyRequests,
				})
				logger.WarnContext(r.Context(), "rate limit exceeded", attrs...)
				retryAfter := max(int(math.Ceil(1/cfg.RequestsPerSecond)), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, apiError{Error: "too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	return clientKeyWithProxies(r, nil)
}

// TrustedProxyConfig holds trusted proxy CIDR list for X-Forwarded-For handling.
type TrustedProxyConfig struct {
	CIDRs []netip.Prefix
}

// ParseTrustedProxies parses a comma-separated list of CIDRs or bare addresses.
func ParseTrustedProxies(raw string) (*TrustedProxyConfig, error) {
	cidrs, err := cidr.ParseList(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxy list: %w", err)
	}
	return &TrustedProxyConfig{CIDRs: cidrs}, nil
}

// IsTrusted checks if the remote address is from a trusted proxy.
func (tc *TrustedProxyConfig) IsTrusted(remoteAddr string) bool {
	if tc == nil || len(tc.CIDRs) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return cidr.ContainsAddr(tc.CIDRs, addr)
}

// clientKeyWithProxies extracts the client IP, only trusting X-Forwarded-For from trusted proxies.
func clientKeyWithProxies(r *http.Request, proxies *TrustedProxyConfig) string {
	if proxies != nil && proxies.IsTrusted(r.RemoteAddr) {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			parts := strings.SplitN(xff, ",", 2)
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LoginRateLimitConfig configures per-IP login rate limiting.
type LoginRateLimitConfig struct {
	AttemptsPerMinute int
	ProxyConfig       *TrustedProxyConfig
}

// LoginRateLimitMiddleware wraps a handler with per-IP login rate limiting.
// Idle entries are swept on access, so no background goroutine is needed.
func LoginRateLimitMiddleware(cfg LoginRateLimitConfig) Middleware {
	if cfg.AttemptsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	type ipEntry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu          sync.Mutex
		clients     = make(map[string]*ipEntry)
		lastCleanup time.Time
	)

	rps := rate.Limit(float64(cfg.AttemptsPerMinute) / 60.0)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientKeyWithProxies(r, cfg.ProxyConfig)
			now := time.Now()

			mu.Lock()
			if now.Sub(lastCleanup) > 5*time.Minute {
				for k, entry := range clients {
					if now.Sub(entry.lastSeen) > 10*time.Minute {
						delete(clients, k)
					}
				}
				lastCleanup = now
			}
			entry, ok := clients[ip]
			if !ok {
				entry = &ipEntry{limiter: rate.NewLimiter(rps, cfg.AttemptsPerMinute)}
				clients[ip] = entry
			}
			entry.lastSeen = now
			mu.Unlock()

			if !entry.limiter.Allow() {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, apiError{Error: "too many login attempts", Detail: "try again later"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken returns the token from the "session" cookie or, failing
// that, from an Authorization: Bearer header.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func bearerAuth(r *http.Request) bool {
	_, err := r.Cookie(sessionCookieName)
	return err != nil && strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// SessionAuthMiddleware resolves the session token and stores the session in
// the request context. Requests without a live session get 401.
func SessionAuthMiddleware(authn *auth.Authenticator, logger *slog.Logger) Middleware {
	return sessionMiddleware(authn, true, logger)
}

// OptionalSessionMiddleware attaches a live session when present and lets
// every request through.
func OptionalSessionMiddleware(authn *auth.Authenticator, logger *slog.Logger) Middleware {
	return sessionMiddleware(authn, false, logger)
}

func sessionMiddleware(authn *auth.Authenticator, required bool, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := sessionToken(r)
			if token == "" {
				if required {
					logAuthFailure(logger, r, "missing session")
					writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthorized", Detail: "sign in first"})
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			session, err := authn.Resolve(ctx, token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrSessionExpired):
				if required {
					logAuthFailure(logger, r, err.Error())
					writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthorized", Detail: "session expired or unknown"})
					return
				}
				next.ServeHTTP(w, r)
				return
			default:
				logAuthError(logger, r, "session lookup failed", err)
				writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal error"})
				return
			}

			ctx = auth.ContextWithSession(ctx, session)
			ctx = observability.WithUser(ctx, session.Identity.Username)
			if hub := sentry.GetHubFromContext(ctx); hub != nil {
				hub.Scope().SetUser(sentry.User{Username: session.Identity.Username})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	attrs := appendRequestID(r.Context(), []any{
		"method", r.Method,
		"path", r.URL.Path,
		"reason", reason,
	})
	logger.WarnContext(r.Context(), "authentication failed", attrs...)
}

func logAuthError(logger *slog.Logger, r *http.Request, msg string, err error) {
	attrs := appendRequestID(r.Context(), []any{
		"method", r.Method,
		"path", r.URL.Path,
		"error", err.Error(),
	})
	logger.ErrorContext(r.Context(), msg, attrs...)
}

// AuditMiddleware captures audit events for mutating requests (POST, PUT,
// PATCH, DELETE). It extracts the actor from the session context and logs
// the event after the response. GET requests are not audited.
func AuditMiddleware(auditLogger audit.AuditLogger, logger *slog.Logger) Middleware {
	if auditLogger == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			resourceType, resourceID := parseResourceFromPath(r.URL.Path)
			if resourceType == "" {
				return
			}
			action := methodToAction(r.Method)
			if action == "" {
				return
			}

			ctx := r.Context()
			actor, actorType := actorFromContext(ctx)

			event := &audit.AuditEvent{
				Actor:        actor,
				ActorType:    actorType,
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				RequestID:    RequestIDFromContext(ctx),
				IPAddress:    clientKey(r),
				StatusCode:   recorder.status,
			}
			if err := auditLogger.Log(ctx, event); err != nil {
				attrs := appendRequestID(ctx, []any{
					"error", err.Error(),
					"resource_type", resourceType,
					"resource_id", resourceID,
					"action", action,
				})
				logger.ErrorContext(ctx, "failed to log audit event", attrs...)
			}
		})
	}
}

// parseResourceFromPath extracts resource type and ID from a URL path.
func parseResourceFromPath(path string) (resourceType, resourceID string) {
	// /api/v1/conversations            -> conversation, ""
	// /api/v1/conversations/abc/export -> conversation, "abc"
	// /api/v1/comparisons/1            -> comparison, "1"
	// /api/v1/auth/logout              -> session, ""
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		return "", ""
	}

	id := ""
	if len(parts) >= 4 {
		id = parts[3]
	}
	switch parts[2] {
	case "conversations":
		return audit.ResourceConversation, id
	case "messages":
		return audit.ResourceMessage, ""
	case "comparisons":
		return audit.ResourceComparison, id
	case "settings":
		return audit.ResourceSettings, id
	case "inputs":
		return audit.ResourceInputs, ""
	case "auth":
		// login and register audit themselves once the actor is known
		if id == "logout" {
			return audit.ResourceSession, ""
		}
	}
	return "", ""
}

// methodToAction maps HTTP methods to audit actions.
func methodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return audit.ActionCreate
	case http.MethodPatch, http.MethodPut:
		return audit.ActionUpdate
	case http.MethodDelete:
		return audit.ActionDelete
	default:
		return ""
	}
}

// RequirePermissionMiddleware returns middleware that checks for a specific RBAC permission.
// Must be used after SessionAuthMiddleware.
//
// If the user lacks the required permission, returns 403 Forbidden.
func RequirePermissionMiddleware(resource, action string, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			role := auth.GetEffectiveRole(ctx)
			if role == auth.RoleNone {
				writeJSON(w, http.StatusUnauthorized, apiError{Error: "unauthorized"})
				return
			}

			if !auth.HasPermission(role, resource, action) {
				attrs := appendRequestID(ctx, []any{
					"method", r.Method,
					"path", r.URL.Path,
					"role", string(role),
					"required_resource", resource,
					"required_action", action,
				})
				logger.WarnContext(ctx, "authorization denied", attrs...)

				// generic message, no permission details
				writeJSON(w, http.StatusForbidden, apiError{Error: "forbidden"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
