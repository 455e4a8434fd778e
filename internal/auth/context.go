package auth

import "context"

type contextKey string

const sessionContextKey contextKey = "session"

// ContextWithSession returns a new context with the session stored in it.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	if session == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext retrieves the session from the context.
// Returns nil if no session is present.
func SessionFromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	session, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return session
}

// IdentityFromContext returns the identity of a valid session in ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	s := SessionFromContext(ctx)
	if s == nil || !s.IsValid() {
		return Identity{}, false
	}
	return s.Identity, true
}

// IsAuthenticated returns true if the context carries a valid session.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := IdentityFromContext(ctx)
	return ok
}

// GetEffectiveRole returns the role of the session in ctx, RoleNone without one.
func GetEffectiveRole(ctx context.Context) Role {
	ident, ok := IdentityFromContext(ctx)
	if !ok {
		return RoleNone
	}
	return ident.Role
}

// RequirePermission checks if the context has permission for a resource action.
// Returns nil if permitted, or ErrForbidden if not.
func RequirePermission(ctx context.Context, resource, action string) error {
	if !HasPermission(GetEffectiveRole(ctx), resource, action) {
		return ErrForbidden
	}
	return nil
}
