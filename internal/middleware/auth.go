package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/rollcall/internal/auth"
	"github.com/mmynk/rollcall/internal/session"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// AdminIDKey is the context key for the authenticated admin ID.
	AdminIDKey contextKey = "admin_id"
	// EmailKey is the context key for the authenticated admin's email.
	EmailKey contextKey = "email"
	// SessionIDKey is the context key for the guard session ID.
	SessionIDKey contextKey = "session_id"
)

// GetAdminID extracts the admin ID from the context.
// Returns empty string if not found.
func GetAdminID(ctx context.Context) string {
	id, _ := ctx.Value(AdminIDKey).(string)
	return id
}

// GetEmail extracts the admin email from the context.
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

// GetSessionID extracts the session ID from the context.
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// WithClaims returns ctx carrying the identity from claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, AdminIDKey, claims.AdminID)
	ctx = context.WithValue(ctx, EmailKey, claims.Email)
	return context.WithValue(ctx, SessionIDKey, claims.SessionID)
}

// Authorizer validates bearer tokens against the JWT manager and the
// session guard.
type Authorizer struct {
	jwt   *auth.JWTManager
	guard *session.Guard

	// activity procedures reset the inactivity countdown; every other
	// call only verifies the session.
	activity map[string]bool
}

// NewAuthorizer creates an Authorizer. Only calls to the activity
// procedures count as user input; polling and data loads do not keep a
// session alive.
func NewAuthorizer(jwtManager *auth.JWTManager, guard *session.Guard, activity ...string) *Authorizer {
	a := &Authorizer{jwt: jwtManager, guard: guard, activity: make(map[string]bool, len(activity))}
	for _, p := range activity {
		a.activity[p] = true
	}
	return a
}

// Authorize checks the Authorization header value. When touch is set, the
// call counts as session activity.
func (a *Authorizer) Authorize(header string, touch bool) (*auth.Claims, error) {
	if header == "" {
		return nil, auth.ErrMissingToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, auth.ErrInvalidToken
	}

	claims, err := a.jwt.Validate(parts[1])
	if err != nil {
		return nil, err
	}

	if touch {
		err = a.guard.Touch(claims.SessionID)
	} else {
		err = a.guard.Check(claims.SessionID)
	}
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RequireAuth returns an interceptor that rejects calls without a valid token
// and live session, and adds the admin identity to the request context.
func (a *Authorizer) RequireAuth() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			procedure := req.Spec().Procedure
			claims, err := a.Authorize(req.Header().Get("Authorization"), a.activity[procedure])
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			return next(WithClaims(ctx, claims), req)
		}
	}
}

// RequireAuthHTTP wraps a plain HTTP handler with the same checks. Requests
// never count as activity.
func (a *Authorizer) RequireAuthHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Authorize(r.Header.Get("Authorization"), false)
		if err != nil {
			if errors.Is(err, session.ErrExpired) {
				w.Header().Set("X-Session-Expired", "1")
			}
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}
