package middleware

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/divvyhq/divvy/internal/auth"
)

// contextKey is unexported so callers cannot collide with our keys.
type contextKey string

const (
	// UserIDKey carries the authenticated user's id.
	UserIDKey contextKey = "user_id"
	// EmailKey carries the authenticated user's email.
	EmailKey contextKey = "email"
)

// GetUserID returns the authenticated user id, or "" when the request was
// not authenticated.
func GetUserID(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}

// GetEmail returns the authenticated user's email, or "".
func GetEmail(ctx context.Context) string {
	email, _ := ctx.Value(EmailKey).(string)
	return email
}

func bearerToken(req connect.AnyRequest) (string, bool) {
	header := req.Header().Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// RequireAuth rejects any request without a valid bearer token, and stores
// the token's identity in the context for the handler.
func RequireAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			token, ok := bearerToken(req)
			if !ok {
				return nil, connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
			}
			claims, err := jwtManager.Validate(token)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnauthenticated, err)
			}
			ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, EmailKey, claims.Email)
			return next(ctx, req)
		}
	}
}

// OptionalAuth attaches identity when a valid token is present but lets
// anonymous requests through. Used for the public auth procedures.
func OptionalAuth(jwtManager *auth.JWTManager) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if token, ok := bearerToken(req); ok {
				if claims, err := jwtManager.Validate(token); err == nil {
					ctx = context.WithValue(ctx, UserIDKey, claims.UserID)
					ctx = context.WithValue(ctx, EmailKey, claims.Email)
				}
			}
			return next(ctx, req)
		}
	}
}
