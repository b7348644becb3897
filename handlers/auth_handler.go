package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/middleware"
	"github.com/upb/inventory-authz/models"
	"github.com/upb/inventory-authz/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// Introspector answers questions about the caller's own token
type Introspector interface {
	GetUserInfo(header string) *auth.UserPermissions
	CheckAccess(header, route, method string) (*auth.AccessCheck, error)
}

// AuditReader reads recorded authorization decisions
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error)
	Summary(ctx context.Context) (map[models.DecisionOutcome]int64, error)
}

// AuditListResponse is the body of GET /auth/audit
type AuditListResponse struct {
	Decisions []*models.AuthDecisionLog `json:"decisions"`
	Count     int                       `json:"count"`
}

// AuditSummaryResponse is the body of GET /auth/audit/summary
type AuditSummaryResponse struct {
	Allow int64 `json:"allow"`
	Deny  int64 `json:"deny"`
	Total int64 `json:"total"`
}

// AuthHandler serves token introspection and the audit trail
type AuthHandler struct {
	authz  Introspector
	audit  AuditReader
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. audit may be nil when auditing
// is disabled.
func NewAuthHandler(authz Introspector, audit AuditReader, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authz:  authz,
		audit:  audit,
		logger: logger,
	}
}

// HandleMe handles GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	info := h.authz.GetUserInfo(header)
	if info == nil {
		kind := auth.KindInvalidToken
		if strings.TrimSpace(header) == "" {
			kind = auth.KindMissingToken
		}
		middleware.WriteDenial(w, r, kind)
		return
	}

	_ = utils.WriteOK(w, info)
}

// HandleCheck handles GET /auth/check?route=&method=
func (h *AuthHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route")
	if route == "" {
		_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"route": "route is required",
		})
		return
	}
	method := strings.ToUpper(r.URL.Query().Get("method"))
	if method == "" {
		method = http.MethodGet
	}

	check, err := h.authz.CheckAccess(r.Header.Get("Authorization"), route, method)
	if err != nil {
		middleware.WriteDenial(w, r, auth.KindOf(err))
		return
	}

	_ = utils.WriteOK(w, check)
}

// HandleAuditList handles GET /auth/audit?limit=
func (h *AuthHandler) HandleAuditList(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		_ = utils.WriteNotFound(w, "Auditing is disabled")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Validation failed", map[string]interface{}{
			"limit": err.Error(),
		})
		return
	}

	logs, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list audit decisions",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}
	if logs == nil {
		logs = []*models.AuthDecisionLog{}
	}

	_ = utils.WriteOK(w, AuditListResponse{Decisions: logs, Count: len(logs)})
}

// HandleAuditSummary handles GET /auth/audit/summary
func (h *AuthHandler) HandleAuditSummary(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		_ = utils.WriteNotFound(w, "Auditing is disabled")
		return
	}

	counts, err := h.audit.Summary(r.Context())
	if err != nil {
		h.logger.Error("failed to summarize audit decisions",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	resp := AuditSummaryResponse{
		Allow: counts[models.OutcomeAllow],
		Deny:  counts[models.OutcomeDeny],
	}
	resp.Total = resp.Allow + resp.Deny

	_ = utils.WriteOK(w, resp)
}

// parseLimit accepts an empty value (default) or 1..maxAuditLimit; larger
// values are clamped.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultAuditLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, errLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return limit, nil
}

var errLimit = errors.New("limit must be a positive integer")
