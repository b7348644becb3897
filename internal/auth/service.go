package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/upb/inventory-authz/internal/observability"
	"go.uber.org/zap"
)

// State is where a request ended up in the authorization state machine.
type State string

const (
	StatePublic       State = "public"
	StateInternal     State = "internal"
	StateAllowed      State = "allowed"
	StateMissing      State = "missing_token"
	StateInvalid      State = "invalid_token"
	StateExpired      State = "expired_token"
	StateInsufficient State = "insufficient_permissions"
)

// RequestMeta is the request context the decision may use or record.
type RequestMeta struct {
	Headers    http.Header
	RequestID  string
	RemoteAddr string
	UserAgent  string
}

// AuthRequest is a single request to authorize.
type AuthRequest struct {
	Header string
	Route  string
	Method string
	Meta   RequestMeta
}

// Decision is the outcome of Authorize. On deny Payload is nil and Err holds
// the failure category.
type Decision struct {
	Authorized bool
	State      State
	Payload    *TokenPayload
	Err        *AuthError
	Resource   ResourceType
	Action     ActionType
}

// DecisionObserver is notified of every decision. Implementations must not
// block.
type DecisionObserver interface {
	ObserveDecision(ctx context.Context, req AuthRequest, decision Decision)
}

// AccessCheck answers whether the caller could access a route.
type AccessCheck struct {
	Allowed  bool         `json:"allowed"`
	Route    string       `json:"route"`
	Method   string       `json:"method"`
	Resource ResourceType `json:"resource,omitempty"`
	Action   ActionType   `json:"action,omitempty"`
}

// Service orchestrates TokenCodec and AccessValidator into one decision.
type Service struct {
	codec     *TokenCodec
	validator *AccessValidator
	logger    *zap.Logger
	metrics   *observability.Metrics
	observer  DecisionObserver
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithMetrics records every decision in m.
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithObserver hands every decision to o.
func WithObserver(o DecisionObserver) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a new authorization Service
func NewService(codec *TokenCodec, validator *AccessValidator, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		codec:     codec,
		validator: validator,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authorize runs the authorization state machine. The first matching rule
// wins: public route, internal request, missing token, invalid token,
// expired token, insufficient permissions, allow. It never panics and never
// returns an error; every failure becomes a deny.
func (s *Service) Authorize(ctx context.Context, req AuthRequest) (decision Decision) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("authorization panicked, denying request",
				zap.String("request_id", req.Meta.RequestID),
				zap.String("route", req.Route),
				zap.String("method", req.Method),
				zap.String("panic", fmt.Sprint(r)))
			decision = denied(invalidToken("authorization failed", nil))
		}
		s.finish(ctx, req, decision, time.Since(start))
	}()

	return s.evaluate(req)
}

// AuthorizeRequest is Authorize reduced to (authorized, payload).
func (s *Service) AuthorizeRequest(header, route, method string, meta RequestMeta) (bool, *TokenPayload) {
	d := s.Authorize(context.Background(), AuthRequest{
		Header: header,
		Route:  route,
		Method: method,
		Meta:   meta,
	})
	return d.Authorized, d.Payload
}

func (s *Service) evaluate(req AuthRequest) Decision {
	if s.validator.IsPublicRoute(req.Route) {
		return Decision{Authorized: true, State: StatePublic}
	}
	if s.validator.IsInternalRequest(req.Meta.Headers) {
		return Decision{Authorized: true, State: StateInternal}
	}

	payload, err := s.verify(req.Header)
	if err != nil {
		return s.deny(req, err)
	}

	resource, action, err := s.validator.ResolveRequiredPermission(req.Route, req.Method)
	if err != nil {
		return s.deny(req, err)
	}
	if err := s.validator.ValidateAccess(payload, req.Route, req.Method); err != nil {
		d := s.deny(req, err)
		d.Resource, d.Action = resource, action
		return d
	}

	return Decision{
		Authorized: true,
		State:      StateAllowed,
		Payload:    payload,
		Resource:   resource,
		Action:     action,
	}
}

// verify extracts and decodes the bearer token.
func (s *Service) verify(header string) (*TokenPayload, error) {
	token, err := s.codec.ExtractFromHeader(header)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	return s.codec.Decode(token)
}

// deny converts err into a denied decision. Errors outside the taxonomy are
// logged and fail closed as an invalid token.
func (s *Service) deny(req AuthRequest, err error) Decision {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		s.logger.Error("unexpected authorization error, denying request",
			zap.String("request_id", req.Meta.RequestID),
			zap.String("route", req.Route),
			zap.String("method", req.Method),
			zap.Error(err))
		authErr = invalidToken("authorization failed", nil)
	}
	return denied(authErr)
}

func denied(err *AuthError) Decision {
	return Decision{Authorized: false, State: stateForKind(err.Kind), Err: err}
}

func stateForKind(kind ErrorKind) State {
	switch kind {
	case KindMissingToken:
		return StateMissing
	case KindExpiredToken:
		return StateExpired
	case KindInsufficientPermissions:
		return StateInsufficient
	}
	return StateInvalid
}

func (s *Service) finish(ctx context.Context, req AuthRequest, d Decision, elapsed time.Duration) {
	outcome := "allow"
	if !d.Authorized {
		outcome = "deny"
	}
	s.metrics.RecordDecision(outcome, string(d.State), elapsed)

	fields := []zap.Field{
		zap.String("request_id", req.Meta.RequestID),
		zap.String("route", req.Route),
		zap.String("method", req.Method),
		zap.String("state", string(d.State)),
	}
	if d.Payload != nil {
		fields = append(fields, zap.String("user_id", d.Payload.UserID), zap.String("role", string(d.Payload.Role)))
	}
	if d.Authorized {
		s.logger.Debug("request authorized", fields...)
	} else {
		// only our own category message; never token or signature material
		fields = append(fields, zap.String("reason", d.Err.Message))
		s.logger.Warn("request denied", fields...)
	}

	s.notify(ctx, req, d)
}

func (s *Service) notify(ctx context.Context, req AuthRequest, d Decision) {
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("decision observer panicked",
				zap.String("request_id", req.Meta.RequestID),
				zap.String("route", req.Route),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	s.observer.ObserveDecision(ctx, req, d)
}

// GetUserInfo returns the caller's enumerated permissions, or nil on any
// failure including malformed input.
func (s *Service) GetUserInfo(header string) (info *UserPermissions) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("user info lookup panicked", zap.String("panic", fmt.Sprint(r)))
			info = nil
		}
	}()

	payload, err := s.verify(header)
	if err != nil {
		s.logger.Debug("user info denied", zap.String("reason", string(KindOf(err))))
		return nil
	}
	perms := s.validator.GetUserPermissions(payload)
	return &perms
}

// CheckAccess reports whether the bearer of header could call route with
// method. Token failures are returned as *AuthError; a permission failure is
// an AccessCheck with Allowed false.
func (s *Service) CheckAccess(header, route, method string) (*AccessCheck, error) {
	payload, err := s.verify(header)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, invalidToken("authorization failed", nil)
	}

	check := &AccessCheck{Route: NormalizeRoute(route), Method: method}
	resource, action, err := s.validator.ResolveRequiredPermission(route, method)
	if err != nil {
		return check, nil
	}
	check.Resource, check.Action = resource, action
	check.Allowed = s.validator.ValidateAccess(payload, route, method) == nil
	return check, nil
}
