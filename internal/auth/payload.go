package auth

import "time"

// TokenPayload is the identity extracted from a verified token.
// It lives for a single request and is never mutated or persisted.
type TokenPayload struct {
	UserID    string
	Role      Role
	ExpiresAt time.Time
	IssuedAt  *time.Time
}

// Expired reports whether the payload is no longer valid at now.
func (p *TokenPayload) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// AccessRequest expresses who wants to do what.
type AccessRequest struct {
	Resource ResourceType
	Action   ActionType
	Role     Role
}

// UserPermissions is the introspection view of a caller.
type UserPermissions struct {
	Role        Role                          `json:"role"`
	UserID      string                        `json:"user_id"`
	Permissions map[ResourceType][]ActionType `json:"permissions"`
}
