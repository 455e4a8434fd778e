package api

import (
	"errors"
	"net/http"
	"time"

	"fluxmare/internal/audit"
	"fluxmare/internal/auth"
)

type sessionResponse struct {
	Token     string        `json:"token"`
	User      auth.Identity `json:"user"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// handleLogin signs in with a username or email.
// POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}

	session, err := s.auth.Login(ctx, input.Username, input.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logAudit(ctx, audit.ActionCreate, audit.ResourceSession, "", http.StatusUnauthorized)
		}
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.startSession(w, r, session, audit.ResourceSession)
}

// handleRegister creates an account and signs it in.
// POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input auth.RegisterRequest
	if err := decodeJSON(r, &input); err != nil {
		s.writeErr(ctx, w, http.StatusBadRequest, "invalid json", "")
		return
	}

	session, err := s.auth.Register(ctx, input)
	if err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}
	s.startSession(w, r, session, audit.ResourceAccount)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, session *auth.Session, resource string) {
	s.logAudit(auth.ContextWithSession(r.Context(), session), audit.ActionCreate, resource, session.Identity.Username, http.StatusOK)
	setSessionCookie(w, r, session.ID, int(time.Until(session.ExpiresAt).Seconds()))
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     session.ID,
		User:      session.Identity,
		ExpiresAt: session.ExpiresAt,
	})
}

// setSessionCookie writes the "session" cookie. Secure is only set when
// served over HTTPS so cookies work on http://localhost. A negative maxAge
// clears it.
func setSessionCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	isSecure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	sameSite := http.SameSiteLaxMode
	if isSecure {
		sameSite = http.SameSiteStrictMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: sameSite,
		MaxAge:   maxAge,
	})
}

// handleLogout ends the session and clears the current user.
// POST /api/v1/auth/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := ""
	if session := auth.SessionFromContext(ctx); session != nil {
		token = session.ID
		s.chats.Forget(session.Identity.Username)
	}
	if err := s.auth.Logout(ctx, token); err != nil {
		s.writeStoreErr(ctx, w, err)
		return
	}

	setSessionCookie(w, r, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the identity behind the session.
// GET /api/v1/auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		s.writeErr(r.Context(), w, http.StatusUnauthorized, "not authenticated", "")
		return
	}
	perms := auth.GetPermissions(session.Role())
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	writeJSON(w, http.StatusOK, struct {
		User        auth.Identity `json:"user"`
		ExpiresAt   time.Time     `json:"expires_at"`
		Permissions []string      `json:"permissions"`
	}{
		User:        session.Identity,
		ExpiresAt:   session.ExpiresAt,
		Permissions: names,
	})
}
