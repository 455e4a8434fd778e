package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	apidocs "fluxmare/docs"
	"fluxmare/internal/audit"
	"fluxmare/internal/storage"
)

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(apidocs.OpenAPISpec)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"pending_replies": s.responder.Pending(),
	})
}

// ReadinessResponse represents the JSON response for the readiness check endpoint.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReady checks if the application is ready to accept traffic.
// Unlike /healthz (liveness), this endpoint verifies that the store answers.
// Returns 200 OK if all checks pass, 503 Service Unavailable otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string)
	status := "ok"

	// Ping when the store supports it, otherwise list a key prefix.
	var err error
	if hc, ok := s.store.(storage.HealthCheck); ok {
		err = hc.Ping(ctx)
	} else {
		_, err = s.store.Keys(ctx, storage.KeyCurrentUser)
	}
	if err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		s.logger.ErrorContext(ctx, "readiness check failed", "check", "database", "error", err.Error())
	} else {
		checks["database"] = "ok"
	}

	resp := ReadinessResponse{Status: status, Checks: checks}
	if status == "ok" {
		writeJSON(w, http.StatusOK, resp)
	} else {
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

// sessionCounter is implemented by auth.MemorySessionStore.
type sessionCounter interface {
	Count() int
	ActiveUsers() []string
}

// AdminOverview summarizes the running service for the admin account.
type AdminOverview struct {
	RegisteredUsers []string            `json:"registeredUsers"`
	LoadedUsers     []string            `json:"loadedUsers"`
	ActiveSessions  int                 `json:"activeSessions"`
	SignedInUsers   []string            `json:"signedInUsers"`
	PendingReplies  int                 `json:"pendingReplies"`
	Comparisons     int                 `json:"comparisons"`
	SavedInputs     int                 `json:"savedInputs"`
	RecentActivity  []*audit.AuditEvent `json:"recentActivity"`
	GeneratedAt     time.Time           `json:"generatedAt"`
}

// GET /api/v1/admin/overview
func (s *Server) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	registered, err := s.registeredUsers(ctx)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	cmp, err := s.comparisons.Snapshots(ctx)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	inputs, err := s.history.List(ctx)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	recent, _, err := s.auditLogger.List(ctx, audit.ListOptions{Limit: 20})
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}

	out := AdminOverview{
		RegisteredUsers: registered,
		LoadedUsers:     s.chats.Usernames(),
		SignedInUsers:   []string{},
		PendingReplies:  s.responder.Pending(),
		Comparisons:     len(cmp),
		SavedInputs:     len(inputs),
		RecentActivity:  recent,
		GeneratedAt:     s.now().UTC(),
	}
	if sc, ok := s.auth.Sessions().(sessionCounter); ok {
		out.ActiveSessions = sc.Count()
		out.SignedInUsers = sc.ActiveUsers()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) registeredUsers(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx, "user_")
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		users = append(users, strings.TrimPrefix(k, "user_"))
	}
	sort.Strings(users)
	return users, nil
}

// GET /api/v1/admin/audit - List audit events with optional filtering
// Query params: limit, offset, actor, action, resource_type, since (RFC 3339)
func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	offset := 0
	if o := q.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	opts := audit.ListOptions{
		Limit:        limit,
		Offset:       offset,
		Actor:        q.Get("actor"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeErr(r.Context(), w, http.StatusBadRequest, "since must be RFC 3339", err.Error())
			return
		}
		opts.Since = &since
	}

	events, total, err := s.auditLogger.List(r.Context(), opts)
	if err != nil {
		s.writeErr(r.Context(), w, http.StatusInternalServerError, "failed to list audit events", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleTestSentry lets the admin verify error reporting end to end.
// GET /api/v1/admin/test-sentry?type=message|error|panic
func (s *Server) handleTestSentry(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("type") {
	case "message":
		sentry.CaptureMessage("Sentry test message from Fluxmare")
		sentry.Flush(2 * time.Second)
		writeJSON(w, http.StatusOK, map[string]string{"status": "message sent to Sentry"})
	case "error":
		s.writeErr(r.Context(), w, http.StatusInternalServerError, "test error for Sentry", "this is a test error to verify Sentry integration")
	case "panic":
		panic("test panic for Sentry")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Sentry test endpoint",
			"usage":   "add ?type=message, ?type=error or ?type=panic",
		})
	}
}
