package api

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const (
	csrfTokenLength = 32
	csrfHeaderName  = "X-CSRF-Token"
	csrfCookieName  = "csrf_token"
)

// CSRFMiddleware adds double-submit CSRF protection for cookie-authenticated
// state-changing requests. Bearer token requests carry no cookie and are
// exempt, as are login and register (no session yet).
func CSRFMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip for safe methods
			if r.Method == "GET" || r.Method == "HEAD" || r.Method == "OPTIONS" {
				// Set CSRF token cookie if not present
				if _, err := r.Cookie(csrfCookieName); err != nil {
					token := generateCSRFToken()
					http.SetCookie(w, &http.Cookie{
						Name:     csrfCookieName,
						Value:    token,
						Path:     "/",
						HttpOnly: false, // JS needs to read it
						Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
						SameSite: http.SameSiteLaxMode,
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			if bearerAuth(r) {
				next.ServeHTTP(w, r)
				return
			}

			if r.URL.Path == "/api/v1/auth/login" || r.URL.Path == "/api/v1/auth/register" {
				next.ServeHTTP(w, r)
				return
			}

			// Validate CSRF token from header matches cookie
			cookie, err := r.Cookie(csrfCookieName)
			if err != nil {
				writeJSON(w, http.StatusForbidden, apiError{Error: "CSRF token missing", Detail: "csrf_token cookie required"})
				return
			}
			headerToken := r.Header.Get(csrfHeaderName)
			if headerToken == "" || headerToken != cookie.Value {
				writeJSON(w, http.StatusForbidden, apiError{Error: "CSRF token invalid", Detail: "X-CSRF-Token header must match csrf_token cookie"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func generateCSRFToken() string {
	b := make([]byte, csrfTokenLength)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
