package api_test

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"fluxmare/internal/api"
	"fluxmare/internal/domain"
	"fluxmare/internal/testutil"
)

func TestIntegrationChatFlow(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.DefaultTestServerConfig())
	defer c.Cleanup()

	token := c.Login(t, "navigator", "pw")
	client := c.HTTPClient()

	features := testutil.ValidFeatures()
	req := testutil.MustAuthenticatedRequest(t, http.MethodPost, c.URL("/api/v1/messages"), token,
		testutil.JSONBody(t, domain.SubmitRequest{Features: &features}))
	req.Header.Set("X-Request-ID", "integration-flow-1")
	resp := testutil.DoRequest(t, client, req)
	testutil.AssertStatus(t, resp.StatusCode, http.StatusAccepted)
	testutil.AssertHeader(t, resp, "X-Request-ID", "integration-flow-1")
	var sub struct {
		ConversationID string `json:"conversationId"`
	}
	testutil.ReadJSONResponse(t, resp, &sub)
	if sub.ConversationID == "" {
		t.Fatal("expected a conversation id")
	}

	c.Responder.Wait()

	resp = testutil.DoRequest(t, client, testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/api/v1/conversations/"+sub.ConversationID), token, nil))
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)
	var conv domain.Conversation
	testutil.ReadJSONResponse(t, resp, &conv)
	if len(conv.Messages) != 2 || conv.Messages[1].Dashboard == nil {
		t.Fatalf("expected a dashboard reply, got %+v", conv.Messages)
	}

	resp = testutil.DoRequest(t, client, testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/api/v1/auth/me"), token, nil))
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)
	testutil.AssertContains(t, resp.Body, `"navigator"`)
	_ = resp.Body.Close()

	resp = testutil.DoRequest(t, client, testutil.MustAuthenticatedRequest(t, http.MethodPost,
		c.URL("/api/v1/auth/logout"), token, nil))
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusNoContent)

	resp = testutil.DoRequest(t, client, testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/api/v1/conversations"), token, nil))
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusUnauthorized)
}

func TestIntegrationCSRF(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{EnableCSRF: true})
	defer c.Cleanup()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	client := c.HTTPClient()
	client.Jar = jar

	login, _ := http.NewRequest(http.MethodPost, c.URL("/api/v1/auth/login"),
		testutil.JSONBody(t, map[string]string{"username": "helmsman", "password": "pw"}))
	login.Header.Set("Content-Type", "application/json")
	resp := testutil.DoRequest(t, client, login)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)

	// Cookie session without the token header.
	post, _ := http.NewRequest(http.MethodPost, c.URL("/api/v1/conversations"), nil)
	resp = testutil.DoRequest(t, client, post)
	testutil.AssertStatus(t, resp.StatusCode, http.StatusForbidden)
	testutil.AssertContains(t, resp.Body, "CSRF")
	_ = resp.Body.Close()

	get, _ := http.NewRequest(http.MethodGet, c.URL("/api/v1/conversations"), nil)
	resp = testutil.DoRequest(t, client, get)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)

	var csrf string
	for _, ck := range jar.Cookies(get.URL) {
		if ck.Name == "csrf_token" {
			csrf = ck.Value
		}
	}
	if csrf == "" {
		t.Fatal("expected csrf_token cookie after a GET")
	}

	post, _ = http.NewRequest(http.MethodPost, c.URL("/api/v1/conversations"), nil)
	post.Header.Set("X-CSRF-Token", "wrong")
	resp = testutil.DoRequest(t, client, post)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusForbidden)

	post, _ = http.NewRequest(http.MethodPost, c.URL("/api/v1/conversations"), nil)
	post.Header.Set("X-CSRF-Token", csrf)
	resp = testutil.DoRequest(t, client, post)
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusCreated)
}

func TestIntegrationCSRFBearerExempt(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{EnableCSRF: true})
	defer c.Cleanup()

	token := c.Login(t, "bosun", "pw")
	resp := testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodPost,
		c.URL("/api/v1/conversations"), token, nil))
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusCreated)
}

func TestIntegrationRateLimitAndMetrics(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{
		EnableRateLimit: true,
		RateLimitConfig: api.RateLimitConfig{RequestsPerSecond: 0.1, Burst: 3},
		EnableMetrics:   true,
	})
	defer c.Cleanup()

	client := c.HTTPClient()
	var limited int
	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, c.URL("/healthz"), nil)
		resp := testutil.DoRequest(t, client, req)
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
			testutil.AssertHeaderExists(t, resp, "Retry-After")
		}
	}
	if limited != 2 {
		t.Fatalf("expected 2 rejected requests, got %d", limited)
	}

	// /metrics sits behind the same limiter, so read the collector directly.
	rr := httptest.NewRecorder()
	c.Metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	for _, want := range []string{
		"fluxmare_test_info",
		`fluxmare_test_rate_limit_requests_total{status="allowed"} 3`,
		`fluxmare_test_rate_limit_requests_total{status="rejected"} 2`,
		"fluxmare_test_http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q\n%s", want, body)
		}
	}
}

func TestIntegrationEstimationMetrics(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{EnableMetrics: true})
	defer c.Cleanup()

	token := c.Login(t, "engineer", "pw")
	features := testutil.ValidFeatures()
	resp := testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodPost,
		c.URL("/api/v1/messages"), token, testutil.JSONBody(t, domain.SubmitRequest{Features: &features})))
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusAccepted)
	c.Responder.Wait()

	resp = testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/metrics"), "", nil))
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)
	testutil.AssertContains(t, resp.Body, "fluxmare_test_bot_replies_total")
	_ = resp.Body.Close()
}

func TestIntegrationLoginRateLimit(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{LoginAttemptsPerMinute: 2})
	defer c.Cleanup()

	client := c.HTTPClient()
	attempt := func() *http.Response {
		req, _ := http.NewRequest(http.MethodPost, c.URL("/api/v1/auth/login"),
			testutil.JSONBody(t, map[string]string{"username": testutil.AdminEmail, "password": "wrong"}))
		req.Header.Set("Content-Type", "application/json")
		return testutil.DoRequest(t, client, req)
	}
	for i := 0; i < 2; i++ {
		resp := attempt()
		_ = resp.Body.Close()
		testutil.AssertStatus(t, resp.StatusCode, http.StatusUnauthorized)
	}
	resp := attempt()
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusTooManyRequests)
	testutil.AssertHeader(t, resp, "Retry-After", "60")
}

func TestIntegrationAdminLogin(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.DefaultTestServerConfig())
	defer c.Cleanup()

	user := c.Login(t, "deckhand", "pw")
	admin := c.Login(t, testutil.AdminEmail, testutil.AdminPassword)

	resp := testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/api/v1/admin/overview"), user, nil))
	_ = resp.Body.Close()
	testutil.AssertStatus(t, resp.StatusCode, http.StatusForbidden)

	resp = testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodGet,
		c.URL("/api/v1/admin/overview"), admin, nil))
	testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)
	var overview api.AdminOverview
	testutil.ReadJSONResponse(t, resp, &overview)
	if overview.ActiveSessions != 2 {
		t.Errorf("expected 2 active sessions, got %d", overview.ActiveSessions)
	}
	if c.Sessions.Count() != 2 {
		t.Errorf("expected session store to hold 2 sessions, got %d", c.Sessions.Count())
	}
}

func TestIntegrationSeedDemo(t *testing.T) {
	c := testutil.NewTestServer(t, testutil.TestServerConfig{SeedDemo: true})
	defer c.Cleanup()

	list := func(token string) int {
		resp := testutil.DoRequest(t, c.HTTPClient(), testutil.MustAuthenticatedRequest(t, http.MethodGet,
			c.URL("/api/v1/conversations"), token, nil))
		testutil.AssertStatus(t, resp.StatusCode, http.StatusOK)
		var out struct {
			Conversations []domain.Conversation `json:"conversations"`
		}
		testutil.ReadJSONResponse(t, resp, &out)
		return len(out.Conversations)
	}

	if n := list(c.Login(t, "demo", "pw")); n == 0 {
		t.Error("expected seeded conversations for the demo account")
	}
	if n := list(c.Login(t, "newcomer", "pw")); n != 0 {
		t.Errorf("expected no conversations for a fresh account, got %d", n)
	}
}
