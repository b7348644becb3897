package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	// DefaultInternalHeader marks gateway-forwarded service-to-service traffic.
	DefaultInternalHeader = "X-Internal-Request"

	// DefaultGatewayTokenHeader carries the gateway-issued token.
	DefaultGatewayTokenHeader = "X-Gateway-Token"
)

// InternalRequestConfig controls the internal-request bypass.
type InternalRequestConfig struct {
	MarkerHeader string
	TokenHeader  string
	// ExpectedToken, when set, must equal the gateway token header value.
	ExpectedToken string
}

// AccessValidator decides allow/deny for a verified payload. It only reads
// the tables it was built with and is safe for concurrent use.
type AccessValidator struct {
	permissions *PermissionTable
	routes      *RouteTable
	public      *PublicRouteSet
	internal    InternalRequestConfig
}

// NewAccessValidator creates an AccessValidator
func NewAccessValidator(permissions *PermissionTable, routes *RouteTable, public *PublicRouteSet, internal InternalRequestConfig) *AccessValidator {
	if internal.MarkerHeader == "" {
		internal.MarkerHeader = DefaultInternalHeader
	}
	if internal.TokenHeader == "" {
		internal.TokenHeader = DefaultGatewayTokenHeader
	}
	return &AccessValidator{
		permissions: permissions,
		routes:      routes,
		public:      public,
		internal:    internal,
	}
}

// IsPublicRoute reports whether route bypasses authorization.
func (v *AccessValidator) IsPublicRoute(route string) bool {
	return v.public.Contains(route)
}

// IsInternalRequest requires both the internal marker and a non-empty gateway
// token. Network location is never considered.
func (v *AccessValidator) IsInternalRequest(headers http.Header) bool {
	if headers == nil {
		return false
	}
	marker := strings.TrimSpace(headers.Get(v.internal.MarkerHeader))
	if !strings.EqualFold(marker, "true") {
		return false
	}
	token := strings.TrimSpace(headers.Get(v.internal.TokenHeader))
	if token == "" {
		return false
	}
	if v.internal.ExpectedToken != "" {
		return subtle.ConstantTimeCompare([]byte(token), []byte(v.internal.ExpectedToken)) == 1
	}
	return true
}

// ResolveRequiredPermission maps route and method to a resource and action.
// Unmapped routes fail with InsufficientPermissions.
func (v *AccessValidator) ResolveRequiredPermission(route, method string) (ResourceType, ActionType, error) {
	return v.routes.Resolve(route, method)
}

// ValidateAccess returns nil when payload may access route with method.
func (v *AccessValidator) ValidateAccess(payload *TokenPayload, route, method string) error {
	if payload == nil {
		return ErrMissingToken
	}
	// unmapped routes are denied for every role, admin included
	resource, action, err := v.ResolveRequiredPermission(route, method)
	if err != nil {
		return err
	}
	if payload.Role == RoleAdmin {
		return nil
	}
	req := AccessRequest{Resource: resource, Action: action, Role: payload.Role}
	if !v.permissions.Check(req) {
		return insufficientPermissions("role " + string(payload.Role) + " cannot " + string(action) + " " + string(resource))
	}
	return nil
}

// GetUserPermissions enumerates everything the caller's role may do.
func (v *AccessValidator) GetUserPermissions(payload *TokenPayload) UserPermissions {
	return UserPermissions{
		Role:        payload.Role,
		UserID:      payload.UserID,
		Permissions: v.permissions.Enumerate(payload.Role),
	}
}
