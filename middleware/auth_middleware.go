package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/utils"
	"go.uber.org/zap"
)

// Authorizer decides whether a request may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, req auth.AuthRequest) auth.Decision
}

// AuthMiddleware gates every request through the authorization service
type AuthMiddleware struct {
	authorizer Authorizer
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authorizer Authorizer, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authorizer: authorizer,
		logger:     logger,
	}
}

// denialMessages are the fixed, client-facing messages per failure category.
var denialMessages = map[auth.ErrorKind]string{
	auth.KindMissingToken:            "Authorization token is required",
	auth.KindInvalidToken:            "Invalid authorization token",
	auth.KindExpiredToken:            "Authorization token has expired",
	auth.KindInsufficientPermissions: "Insufficient permissions for this operation",
}

// StatusForKind maps a failure category to its HTTP status.
func StatusForKind(kind auth.ErrorKind) int {
	if kind == auth.KindInsufficientPermissions {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// WriteDenial writes the denial body for kind.
func WriteDenial(w http.ResponseWriter, r *http.Request, kind auth.ErrorKind) {
	message, ok := denialMessages[kind]
	if !ok {
		kind = auth.KindInvalidToken
		message = denialMessages[kind]
	}
	_ = utils.WriteDenial(w, StatusForKind(kind), string(kind), message, r.URL.Path, r.Method)
}

// RequireAuth authorizes the request before any handler runs. CORS preflight
// requests pass untouched.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := requestIDFrom(ctx)
		if requestID != "" {
			ctx = WithRequestID(ctx, requestID)
		}

		decision := m.authorizer.Authorize(ctx, auth.AuthRequest{
			Header: r.Header.Get("Authorization"),
			Route:  r.URL.Path,
			Method: r.Method,
			Meta: auth.RequestMeta{
				Headers:    r.Header,
				RequestID:  requestID,
				RemoteAddr: r.RemoteAddr,
				UserAgent:  r.UserAgent(),
			},
		})

		if !decision.Authorized {
			kind := auth.KindInvalidToken
			if decision.Err != nil {
				kind = decision.Err.Kind
			}
			WriteDenial(w, r, kind)
			return
		}

		switch decision.State {
		case auth.StateInternal:
			ctx = WithInternal(ctx)
		case auth.StateAllowed:
			ctx = WithIdentity(ctx, decision.Payload)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole restricts a route to the given roles. It must run after
// RequireAuth; internal requests are let through.
func (m *AuthMiddleware) RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if IsInternalFromContext(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			role, ok := GetRoleFromContext(ctx)
			if !ok {
				m.logger.Error("role not found in context",
					zap.String("request_id", requestIDFrom(ctx)),
					zap.String("route", r.URL.Path))
				WriteDenial(w, r, auth.KindMissingToken)
				return
			}

			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			m.logger.Warn("role not permitted",
				zap.String("request_id", requestIDFrom(ctx)),
				zap.String("route", r.URL.Path),
				zap.String("role", string(role)))
			WriteDenial(w, r, auth.KindInsufficientPermissions)
		})
	}
}

// requestIDFrom prefers chi's request id and falls back to our own key.
func requestIDFrom(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return GetRequestIDFromContext(ctx)
}
