package middleware

import (
	"context"

	"github.com/upb/inventory-authz/internal/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for the authenticated user ID
	UserIDKey contextKey = "user_id"

	// RoleKey is the context key for the authenticated role
	RoleKey contextKey = "role"

	// InternalKey marks requests admitted by the internal bypass
	InternalKey contextKey = "internal"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithIdentity attaches the verified caller to the context.
func WithIdentity(ctx context.Context, payload *auth.TokenPayload) context.Context {
	if payload == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, UserIDKey, payload.UserID)
	return context.WithValue(ctx, RoleKey, payload.Role)
}

// GetUserIDFromContext retrieves the user ID from context
func GetUserIDFromContext(ctx context.Context) string {
	if val := ctx.Value(UserIDKey); val != nil {
		if userID, ok := val.(string); ok {
			return userID
		}
	}
	return ""
}

// GetRoleFromContext retrieves the caller's role from context
func GetRoleFromContext(ctx context.Context) (auth.Role, bool) {
	if val := ctx.Value(RoleKey); val != nil {
		if role, ok := val.(auth.Role); ok {
			return role, true
		}
	}
	return "", false
}

// WithInternal marks the request as internal service traffic.
func WithInternal(ctx context.Context) context.Context {
	return context.WithValue(ctx, InternalKey, true)
}

// IsInternalFromContext reports whether the request came through the
// internal bypass.
func IsInternalFromContext(ctx context.Context) bool {
	internal, _ := ctx.Value(InternalKey).(bool)
	return internal
}
