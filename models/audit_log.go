package models

import (
	"time"

	"github.com/google/uuid"
)

// DecisionOutcome is the result of an authorization decision
type DecisionOutcome string

const (
	OutcomeAllow DecisionOutcome = "allow"
	OutcomeDeny  DecisionOutcome = "deny"
)

// AuthDecisionLog is one audited authorization decision
type AuthDecisionLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	UserID    string          `json:"user_id,omitempty" db:"user_id"`
	Role      string          `json:"role,omitempty" db:"role"`
	Route     string          `json:"route" db:"route"`
	Method    string          `json:"method" db:"method"`
	Outcome   DecisionOutcome `json:"outcome" db:"outcome"`
	Reason    string          `json:"reason" db:"reason"` // decision state, e.g. expired_token
	Resource  string          `json:"resource,omitempty" db:"resource"`
	Action    string          `json:"action,omitempty" db:"action"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuthDecisionLog model
func (AuthDecisionLog) TableName() string {
	return "authz_audit_logs"
}

// NewAuthDecisionLog creates a new AuthDecisionLog instance
func NewAuthDecisionLog(outcome DecisionOutcome, reason string) *AuthDecisionLog {
	return &AuthDecisionLog{
		ID:        uuid.New(),
		Outcome:   outcome,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// WithTarget sets the route and method that were evaluated
func (a *AuthDecisionLog) WithTarget(route, method string) *AuthDecisionLog {
	a.Route = route
	a.Method = method
	return a
}

// WithIdentity sets the caller, when known
func (a *AuthDecisionLog) WithIdentity(userID, role string) *AuthDecisionLog {
	a.UserID = userID
	a.Role = role
	return a
}

// WithPermission sets the resolved resource and action
func (a *AuthDecisionLog) WithPermission(resource, action string) *AuthDecisionLog {
	a.Resource = resource
	a.Action = action
	return a
}

// WithRequest sets request metadata
func (a *AuthDecisionLog) WithRequest(requestID, ipAddress, userAgent string) *AuthDecisionLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
