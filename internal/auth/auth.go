// Package auth issues and checks the admin session used to manage personas.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// CookieName is the admin session cookie.
	CookieName = "admin_session"
	// SessionTTL is how long an admin login lasts.
	SessionTTL = time.Hour

	roleAdmin = "admin"
	issuer    = "pitcharena"
)

var (
	// ErrUnauthorized is returned for a wrong secret or a missing, expired or
	// tampered session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotConfigured is returned when no admin secret is configured.
	ErrNotConfigured = errors.New("admin access is not configured")
)

// Principal is the caller identity passed into every admin operation.
type Principal struct {
	Subject   string
	Admin     bool
	ExpiresAt time.Time
}

// RequireAdmin returns ErrUnauthorized unless the principal is an admin.
func (p Principal) RequireAdmin() error {
	if !p.Admin {
		return ErrUnauthorized
	}
	return nil
}

type principalKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal, or an anonymous one.
func PrincipalFromContext(ctx context.Context) Principal {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}
	}
	return p
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Sessions signs admin session tokens with HS256.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session issuer keyed by the admin secret.
func NewSessions(adminSecret string) *Sessions {
	return &Sessions{secret: []byte(adminSecret), ttl: SessionTTL, now: time.Now}
}

// Login checks the presented secret and returns a signed session token.
func (s *Sessions) Login(secretKey string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(secretKey), s.secret) != 1 {
		return "", time.Time{}, ErrUnauthorized
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   roleAdmin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin session: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify parses a session token into a principal.
func (s *Sessions) Verify(token string) (Principal, error) {
	if len(s.secret) == 0 {
		return Principal{}, ErrNotConfigured
	}
	var c adminClaims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if c.Role != roleAdmin {
		return Principal{}, ErrUnauthorized
	}
	return Principal{Subject: c.Subject, Admin: true, ExpiresAt: c.ExpiresAt.Time}, nil
}

// FromRequest resolves the principal carried by the request's admin cookie.
// A missing or invalid cookie yields an anonymous principal.
func (s *Sessions) FromRequest(r *http.Request) Principal {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return Principal{}
	}
	p, err := s.Verify(c.Value)
	if err != nil {
		return Principal{}
	}
	return p
}

// Middleware attaches the request's principal to its context.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), s.FromRequest(r))))
	})
}

// SessionCookie builds the cookie that carries a session token.
func SessionCookie(token string, expiresAt time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie expires the admin session cookie.
func ClearCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
