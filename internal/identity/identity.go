// Package identity resolves who is calling: it verifies the bearer token
// issued by the portal's auth provider and carries the user and tab session
// through the request context.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/portal-treinamento/core/internal/domain"
)

const (
	AnonCookieName        = "portal_anon_id"
	SessionHeaderName     = "X-Session-ID"
	DefaultSessionIDValue = "default"
	DevTenantID           = "dev"
	anonCookieMaxAge      = 30 * 24 * time.Hour
)

type contextKey int

const (
	userKey contextKey = iota
	sessionIDKey
)

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errNoSubject    = errors.New("token has no subject")
	errNoTenant     = errors.New("token has no tenant")
)

var (
	anonIDPattern    = regexp.MustCompile(`^anon_[a-f0-9]{32}$`)
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// Claims are the token claims the portal relies on.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// UserFromContext extracts the authenticated user from the request context.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey).(domain.User)
	return u, ok
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	u, _ := UserFromContext(ctx)
	return u.UserID
}

// SessionIDFromContext extracts the tab session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return DefaultSessionIDValue
}

// WithUser returns a context carrying u and sessionID.
func WithUser(ctx context.Context, u domain.User, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return context.WithValue(ctx, sessionIDKey, sanitizeSessionID(sessionID))
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	leeway time.Duration
}

// NewVerifier creates a verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), leeway: 30 * time.Second}
}

// Verify parses and validates a token and maps its claims to a user.
func (v *Verifier) Verify(token string) (domain.User, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(v.leeway))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", errInvalidToken, err)
	}
	if claims.Subject == "" {
		return domain.User{}, errNoSubject
	}
	if claims.TenantID == "" {
		return domain.User{}, errNoTenant
	}
	return domain.User{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     parseRole(claims.Role),
		TenantID: claims.TenantID,
	}, nil
}

// parseRole maps unknown roles to the least privileged one.
func parseRole(s string) domain.UserRole {
	switch r := domain.UserRole(strings.ToLower(strings.TrimSpace(s))); r {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleInstructor, domain.RoleTrainee:
		return r
	default:
		return domain.RoleTrainee
	}
}

func bearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errMissingToken
		}
		return strings.TrimSpace(token), nil
	}
	// Browsers cannot set headers on WebSocket upgrades.
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

func generateAnonID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate anonymous id: %w", err)
	}
	return "anon_" + hex.EncodeToString(buf), nil
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !sessionIDPattern.MatchString(id) {
		return DefaultSessionIDValue
	}
	return id
}

func setAnonCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AnonCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(anonCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(anonCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// devUser returns a per-device anonymous administrator for local runs.
func devUser(w http.ResponseWriter, r *http.Request) (domain.User, error) {
	id := ""
	if c, err := r.Cookie(AnonCookieName); err == nil && anonIDPattern.MatchString(c.Value) {
		id = c.Value
	} else {
		var err error
		if id, err = generateAnonID(); err != nil {
			return domain.User{}, err
		}
	}
	setAnonCookie(w, id)

	tenant := r.Header.Get("X-Tenant-ID")
	if tenant == "" {
		tenant = DevTenantID
	}
	return domain.User{UserID: id, Role: domain.RoleAdmin, TenantID: tenant}, nil
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sid
}

// Middleware authenticates requests. With a nil verifier every caller gets
// an anonymous development identity.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user domain.User
			if verifier == nil {
				u, err := devUser(w, r)
				if err != nil {
					http.Error(w, `{"error":"failed to establish development identity"}`, http.StatusInternalServerError)
					return
				}
				user = u
			} else {
				token, err := bearerToken(r)
				if err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer realm="portal"`)
					http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
					return
				}
				if user, err = verifier.Verify(token); err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}
			}

			ctx := WithUser(r.Context(), user, sessionIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
