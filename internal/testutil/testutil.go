// Package testutil starts a complete Fluxmare server for end-to-end tests
// and carries the request and assertion helpers those tests share.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fluxmare/internal/api"
	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
	"fluxmare/internal/chat"
	"fluxmare/internal/compare"
	"fluxmare/internal/domain"
	"fluxmare/internal/estimation"
	"fluxmare/internal/observability"
	"fluxmare/internal/settings"
	"fluxmare/internal/storage"
)

// Admin credential of every test server.
const (
	AdminEmail    = "admin@fluxmare.test"
	AdminPassword = "test-admin-password"
)

// TestServerConfig holds configuration for creating a test server.
type TestServerConfig struct {
	// EnableRateLimit enables rate limiting middleware.
	EnableRateLimit bool
	// RateLimitConfig configures rate limiting if enabled.
	RateLimitConfig api.RateLimitConfig
	// LoginAttemptsPerMinute limits login and register per client; 0 disables.
	LoginAttemptsPerMinute int
	// EnableMetrics enables metrics collection.
	EnableMetrics bool
	// EnableCSRF requires the double-submit token on cookie sessions.
	EnableCSRF bool
	// SeedDemo gives new users the demo conversations.
	SeedDemo bool
	// ReplyDelay is the bot reply delay; zero replies immediately.
	ReplyDelay time.Duration
}

// DefaultTestServerConfig returns a basic test server configuration.
func DefaultTestServerConfig() TestServerConfig {
	return TestServerConfig{}
}

// TestServerComponents holds all the components created for a test server.
type TestServerComponents struct {
	// Server is the test HTTP server.
	Server *httptest.Server
	// Store is the storage backend.
	Store *storage.MemoryStore
	// Sessions holds the login sessions.
	Sessions *auth.MemorySessionStore
	// Responder schedules bot replies; Wait on it before reading replies.
	Responder *chat.Responder
	// AuditLogger is the audit logger.
	AuditLogger *audit.MemoryAuditLogger
	// Metrics is the metrics collector.
	Metrics *observability.Metrics
	// Logger is the structured logger.
	Logger observability.Logger
	// Cleanup tears down the test server.
	Cleanup func()
}

// NewTestServer creates a fully configured test server with all dependencies
// behind the same middleware chain the binary uses.
func NewTestServer(t *testing.T, cfg TestServerConfig) *TestServerComponents {
	t.Helper()

	store := storage.NewMemoryStore()
	logger := observability.Discard()

	var metrics *observability.Metrics
	if cfg.EnableMetrics {
		metrics = observability.NewMetrics(observability.MetricsConfig{
			Enabled:   true,
			Namespace: "fluxmare_test",
			Version:   "test",
		})
	}

	sessions := auth.NewMemorySessionStore()
	authn, err := auth.NewAuthenticator(store, sessions, auth.AuthenticatorConfig{
		AdminEmail:    AdminEmail,
		AdminPassword: AdminPassword,
	}, logger)
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	rnd := estimation.FixedRandom(0.5)
	estimator := estimation.New(estimation.DefaultCoefficients(), rnd)
	history := chat.NewInputHistory(store, logger, nil)
	responder := chat.NewResponder(chat.ResponderConfig{
		Estimator: estimator,
		History:   history,
		Random:    rnd,
		Delay:     func() time.Duration { return cfg.ReplyDelay },
		Logger:    logger,
		Metrics:   metrics,
	})

	var chatOpts []chat.ManagerOption
	if !cfg.SeedDemo {
		chatOpts = append(chatOpts, chat.WithoutSeed())
	}
	auditLogger := audit.NewMemoryAuditLogger(audit.WithMaxEvents(1000))

	mux := http.NewServeMux()
	srv := api.NewServer(mux, api.Deps{
		Store:       store,
		Auth:        authn,
		Chats:       chat.NewManager(store, logger, chatOpts...),
		Responder:   responder,
		History:     history,
		Estimator:   estimator,
		Comparisons: compare.NewList(store, logger, compare.WithMetrics(metrics)),
		Settings:    settings.NewService(store, logger),
		Audit:       auditLogger,
		Logger:      logger,
		Metrics:     metrics,
	})
	opts := []api.RouteOption{
		api.WithLoginRateLimit(api.LoginRateLimitMiddleware(api.LoginRateLimitConfig{
			AttemptsPerMinute: cfg.LoginAttemptsPerMinute,
		})),
	}
	if cfg.EnableCSRF {
		opts = append(opts, api.WithCSRF())
	}
	srv.RegisterRoutes(opts...)

	rateCfg := api.RateLimitConfig{}
	if cfg.EnableRateLimit {
		rateCfg = cfg.RateLimitConfig
	}
	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger.Slog()),
		observability.RateLimitMetricsMiddleware(metrics, rateCfg.Enabled()),
		api.RateLimitMiddleware(rateCfg, logger.Slog()),
	)

	testServer := httptest.NewServer(handler)

	cleanup := func() {
		testServer.Close()
		responder.Close()
		responder.Wait()
		_ = store.Close()
	}

	return &TestServerComponents{
		Server:      testServer,
		Store:       store,
		Sessions:    sessions,
		Responder:   responder,
		AuditLogger: auditLogger,
		Metrics:     metrics,
		Logger:      logger,
		Cleanup:     cleanup,
	}
}

// ValidFeatures returns a feature form that passes validation.
func ValidFeatures() domain.RawFeatures {
	return domain.RawFeatures{
		SpeedOverGround:      "12",
		WindSpeed10M:         "8",
		WaveHeight:           "1.5",
		WavePeriod:           "6",
		SeaFloorDepth:        "200",
		Temperature2M:        "25",
		OceanCurrentVelocity: "0.5",
	}
}

// Login signs in through the API and returns the session token.
func (c *TestServerComponents) Login(t *testing.T, username, password string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, c.URL("/api/v1/auth/login"),
		JSONBody(t, map[string]string{"username": username, "password": password}))
	if err != nil {
		t.Fatalf("failed to create login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := DoRequest(t, c.HTTPClient(), req)
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		t.Fatalf("login as %q: expected 200, got %d", username, resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	ReadJSONResponse(t, resp, &out)
	if out.Token == "" {
		t.Fatal("login returned no token")
	}
	return out.Token
}

// AuthenticatedRequest creates an HTTP request carrying a session token as a
// Bearer header.
func AuthenticatedRequest(method, url, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// MustAuthenticatedRequest is AuthenticatedRequest that fails the test on error.
func MustAuthenticatedRequest(t *testing.T, method, url, token string, body io.Reader) *http.Request {
	t.Helper()
	req, err := AuthenticatedRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	return req
}

// DoRequest performs an HTTP request and returns the response.
func DoRequest(t *testing.T, client *http.Client, req *http.Request) *http.Response {
	t.Helper()

	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	return resp
}

// AssertStatus checks that the response has the expected status code.
func AssertStatus(t *testing.T, got, expected int) {
	t.Helper()

	if got != expected {
		t.Errorf("expected status %d, got %d", expected, got)
	}
}

// AssertJSON checks that the response body matches the expected JSON structure.
// The expected value should be a pointer to the struct to unmarshal into.
func AssertJSON(t *testing.T, body io.Reader, expected any) {
	t.Helper()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	if err := json.Unmarshal(data, expected); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v\nBody: %s", err, string(data))
	}
}

// AssertJSONEqual checks that the response body equals the expected JSON.
func AssertJSONEqual(t *testing.T, body io.Reader, expected any) {
	t.Helper()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}

	// Compare by unmarshaling both to any and comparing
	var gotValue, expectedValue any
	if err := json.Unmarshal(data, &gotValue); err != nil {
		t.Fatalf("failed to unmarshal actual: %v\nBody: %s", err, string(data))
	}
	if err := json.Unmarshal(expectedJSON, &expectedValue); err != nil {
		t.Fatalf("failed to unmarshal expected: %v", err)
	}

	gotNorm, _ := json.Marshal(gotValue)
	expectedNorm, _ := json.Marshal(expectedValue)

	if !bytes.Equal(gotNorm, expectedNorm) {
		t.Errorf("JSON mismatch:\nExpected: %s\nGot: %s", expectedNorm, gotNorm)
	}
}

// AssertContains checks that the response body contains the expected string.
func AssertContains(t *testing.T, body io.Reader, expected string) {
	t.Helper()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	if !bytes.Contains(data, []byte(expected)) {
		t.Errorf("expected body to contain %q, got: %s", expected, string(data))
	}
}

// AssertHeader checks that the response has the expected header value.
func AssertHeader(t *testing.T, resp *http.Response, key, expected string) {
	t.Helper()

	got := resp.Header.Get(key)
	if got != expected {
		t.Errorf("expected header %s=%q, got %q", key, expected, got)
	}
}

// AssertHeaderExists checks that the response has the specified header.
func AssertHeaderExists(t *testing.T, resp *http.Response, key string) {
	t.Helper()

	if resp.Header.Get(key) == "" {
		t.Errorf("expected header %s to exist", key)
	}
}

// JSONBody creates an io.Reader from a JSON-serializable value.
func JSONBody(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}

	return bytes.NewReader(data)
}

// ReadJSONResponse reads and unmarshals a JSON response body.
func ReadJSONResponse(t *testing.T, resp *http.Response, v any) {
	t.Helper()

	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal response: %v\nBody: %s", err, string(data))
	}
}

// HTTPClient returns the test server's client configured for the server.
func (c *TestServerComponents) HTTPClient() *http.Client {
	return c.Server.Client()
}

// URL returns the full URL for a given path.
func (c *TestServerComponents) URL(path string) string {
	return c.Server.URL + path
}
