package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"fluxmare/internal/observability"
	"fluxmare/internal/storage"
	"fluxmare/internal/validation"
)

// Built-in admin credential, overridable through configuration.
const (
	DefaultAdminEmail    = "fluxmare_admin@gmail.com"
	DefaultAdminPassword = "19062004"
	AdminUsername        = "admin"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 6

// ErrInvalidRegistration wraps every Register rejection.
var ErrInvalidRegistration = errors.New("invalid registration")

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthenticatorConfig configures the mock login flow.
type AuthenticatorConfig struct {
	AdminEmail    string
	AdminPassword string
	// AdminPasswordHash takes precedence over AdminPassword when set.
	AdminPasswordHash []byte
	SessionTTL        time.Duration
}

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Authenticator implements login, registration and logout. Any non-empty
// credential pair logs in as a regular user; only the admin email is
// checked against a password hash.
type Authenticator struct {
	store      storage.KeyValueStore
	sessions   SessionStore
	adminEmail string
	adminHash  []byte
	ttl        time.Duration
	logger     observability.Logger
}

func NewAuthenticator(store storage.KeyValueStore, sessions SessionStore, cfg AuthenticatorConfig, logger observability.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.DefaultConfig())
	}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = DefaultAdminEmail
	}
	hash := cfg.AdminPasswordHash
	if hash == nil {
		pw := cfg.AdminPassword
		if pw == "" {
			pw = DefaultAdminPassword
		}
		var err error
		if hash, err = HashPassword(pw); err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionDuration
	}
	return &Authenticator{
		store:      store,
		sessions:   sessions,
		adminEmail: cfg.AdminEmail,
		adminHash:  hash,
		ttl:        cfg.SessionTTL,
		logger:     logger.WithComponent("auth"),
	}, nil
}

// Sessions exposes the session store for the HTTP layer.
func (a *Authenticator) Sessions() SessionStore {
	return a.sessions
}

// Login signs in with a username or email. The admin email must carry the
// admin password; every other non-empty pair is accepted.
func (a *Authenticator) Login(ctx context.Context, login, password string) (*Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	var ident Identity
	if strings.EqualFold(login, a.adminEmail) {
		if err := VerifyPassword(password, a.adminHash); err != nil {
			a.logger.WarnContext(ctx, "admin login rejected")
			return nil, ErrInvalidCredentials
		}
		ident = Identity{Username: AdminUsername, Email: a.adminEmail, Role: RoleAdmin}
	} else {
		ident = Identity{Username: login, Email: login, Role: RoleUser}
		email, err := a.store.Get(ctx, storage.UserEmailKey(login))
		switch {
		case err == nil:
			ident.Email = email
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
	}

	s, err := a.begin(ctx, ident)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "login", "user", ident.Username, "role", string(ident.Role))
	return s, nil
}

// Register records the account and signs it in. The password is kept as
// entered under user_{username}.
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return nil, fmt.Errorf("all fields are required: %w", ErrInvalidRegistration)
	}
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("passwords do not match: %w", ErrInvalidRegistration)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, ErrInvalidRegistration)
	}
	if !emailRe.MatchString(req.Email) {
		return nil, fmt.Errorf("email %q is not valid: %w", req.Email, ErrInvalidRegistration)
	}
	if err := validation.ValidateName(req.Username); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistration, err)
	}
	if strings.EqualFold(req.Email, a.adminEmail) || req.Username == AdminUsername {
		return nil, fmt.Errorf("reserved account: %w", ErrInvalidRegistration)
	}

	if err := a.store.Set(ctx, storage.UserPasswordKey(req.Username), req.Password); err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, storage.UserEmailKey(req.Username), req.Email); err != nil {
		return nil, err
	}

	s, err := a.begin(ctx, Identity{Username: req.Username, Email: req.Email, Role: RoleUser})
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "registered", "user", req.Username)
	return s, nil
}

// Logout ends the session behind token and clears the current user.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if token != "" {
		if err := a.sessions.Delete(ctx, token); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	if err := a.store.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return err
	}
	return a.store.Delete(ctx, storage.KeyCurrentUserEmail)
}

// Current reads the last signed-in identity from the store.
func (a *Authenticator) Current(ctx context.Context) (Identity, bool, error) {
	user, err := a.store.Get(ctx, storage.KeyCurrentUser)
	if errors.Is(err, storage.ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	email, err := storage.GetOr(ctx, a.store, storage.KeyCurrentUserEmail, "")
	if err != nil {
		return Identity{}, false, err
	}
	ident := Identity{Username: user, Email: email, Role: RoleUser}
	if user == AdminUsername && email == a.adminEmail {
		ident.Role = RoleAdmin
	}
	return ident, true, nil
}

// Resolve looks up a live session by token.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*Session, error) {
	s, err := a.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (a *Authenticator) begin(ctx context.Context, ident Identity) (*Session, error) {
	if err := a.store.Set(ctx, storage.KeyCurrentUser, ident.Username); err != nil {
		return nil, err
	}
	if err := a.store.Set(ctx, storage.KeyCurrentUserEmail, ident.Email); err != nil {
		return nil, err
	}
	s := NewSession(ident, a.ttl)
	if err := a.sessions.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
