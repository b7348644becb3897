package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/models"
	"github.com/upb/inventory-authz/repositories/memory"
	"github.com/upb/inventory-authz/services/audit"
	"github.com/upb/inventory-authz/utils"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret-with-32-plus-chars"

// MockAuditReader is a mock implementation of AuditReader
type MockAuditReader struct {
	mock.Mock
}

func (m *MockAuditReader) Recent(ctx context.Context, limit int) ([]*models.AuthDecisionLog, error) {
	args := m.Called(ctx, limit)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuthDecisionLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditReader) Summary(ctx context.Context) (map[models.DecisionOutcome]int64, error) {
	args := m.Called(ctx)
	if counts := args.Get(0); counts != nil {
		return counts.(map[models.DecisionOutcome]int64), args.Error(1)
	}
	return nil, args.Error(1)
}

type authFixture struct {
	codec   *auth.TokenCodec
	service *auth.Service
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	codec, err := auth.NewTokenCodec(auth.CodecConfig{Secret: testSecret})
	require.NoError(t, err)
	routes, err := auth.NewRouteTable(auth.DefaultRouteRules())
	require.NoError(t, err)
	validator := auth.NewAccessValidator(
		auth.MustPermissionTable(auth.DefaultGrants()),
		routes,
		auth.NewPublicRouteSet(auth.DefaultPublicRoutes()),
		auth.InternalRequestConfig{},
	)
	return &authFixture{
		codec:   codec,
		service: auth.NewService(codec, validator, zap.NewNop()),
	}
}

func (f *authFixture) bearer(t *testing.T, role auth.Role, expiresIn time.Duration) string {
	t.Helper()
	tok, err := f.codec.Encode(auth.TokenPayload{UserID: "42", Role: role, ExpiresAt: time.Now().Add(expiresIn)})
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestHandleMe(t *testing.T) {
	f := newAuthFixture(t)
	handler := NewAuthHandler(f.service, nil, zap.NewNop())

	t.Run("returns the caller's permissions", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", f.bearer(t, auth.RoleViewer, time.Hour))
		w := httptest.NewRecorder()

		handler.HandleMe(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var info auth.UserPermissions
		require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
		assert.Equal(t, auth.RoleViewer, info.Role)
		assert.Equal(t, "42", info.UserID)
		assert.Equal(t, []auth.ActionType{auth.ActionRead}, info.Permissions[auth.ResourceProducts])
		assert.NotContains(t, info.Permissions, auth.ResourceUsers)
	})

	tests := []struct {
		name   string
		header string
		kind   string
	}{
		{"no header", "", "missing_token"},
		{"garbage token", "Bearer definitely-not-a-real-jwt-token", "invalid_token"},
		{"expired token", f.bearer(t, auth.RoleAdmin, -time.Hour), "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.HandleMe(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body utils.DenialResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.kind, body.Error)
			assert.Equal(t, utils.CodeUnauthorized, body.Code)
		})
	}
}

func TestHandleCheck(t *testing.T) {
	f := newAuthFixture(t)
	handler := NewAuthHandler(f.service, nil, zap.NewNop())

	tests := []struct {
		name     string
		query    string
		role     auth.Role
		allowed  bool
		resource auth.ResourceType
		action   auth.ActionType
	}{
		{"viewer may read products", "?route=/productos&method=get", auth.RoleViewer, true, auth.ResourceProducts, auth.ActionRead},
		{"viewer may not create products", "?route=/productos&method=POST", auth.RoleViewer, false, auth.ResourceProducts, auth.ActionCreate},
		{"method defaults to GET", "?route=/proveedores/3", auth.RoleUser, true, auth.ResourceProviders, auth.ActionRead},
		{"unmapped route is never allowed", "?route=/unknown-resource", auth.RoleAdmin, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/check"+tt.query, nil)
			req.Header.Set("Authorization", f.bearer(t, tt.role, time.Hour))
			w := httptest.NewRecorder()

			handler.HandleCheck(w, req)

			assert.Equal(t, http.StatusOK, w.Code)

			var check auth.AccessCheck
			require.NoError(t, json.NewDecoder(w.Body).Decode(&check))
			assert.Equal(t, tt.allowed, check.Allowed)
			assert.Equal(t, tt.resource, check.Resource)
			assert.Equal(t, tt.action, check.Action)
		})
	}

	t.Run("missing route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/check", nil)
		req.Header.Set("Authorization", f.bearer(t, auth.RoleAdmin, time.Hour))
		w := httptest.NewRecorder()

		handler.HandleCheck(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "route is required", response.Details["route"])
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/check?route=/productos", nil)
		req.Header.Set("Authorization", f.bearer(t, auth.RoleAdmin, -time.Hour))
		w := httptest.NewRecorder()

		handler.HandleCheck(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)

		var body utils.DenialResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, "expired_token", body.Error)
	})
}

func TestHandleAuditList(t *testing.T) {
	logger := zap.NewNop()

	t.Run("lists recorded decisions newest first", func(t *testing.T) {
		repo := memory.NewAuditRepository(100)
		ctx := context.Background()
		for _, reason := range []string{"missing_token", "expired_token", "insufficient_permissions"} {
			require.NoError(t, repo.Insert(ctx, models.NewAuthDecisionLog(models.OutcomeDeny, reason)))
		}
		handler := NewAuthHandler(nil, audit.NewService(repo, logger, nil, audit.DefaultConfig()), logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit?limit=2", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditList(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response AuditListResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, 2, response.Count)
		require.Len(t, response.Decisions, 2)
		assert.Equal(t, "insufficient_permissions", response.Decisions[0].Reason)
		assert.Equal(t, "expired_token", response.Decisions[1].Reason)
	})

	limitTests := []struct {
		name  string
		query string
		limit int
	}{
		{"default limit", "", 50},
		{"explicit limit", "?limit=10", 10},
		{"limit is capped", "?limit=10000", 500},
	}

	for _, tt := range limitTests {
		t.Run(tt.name, func(t *testing.T) {
			reader := new(MockAuditReader)
			reader.On("Recent", mock.Anything, tt.limit).Return(nil, nil)
			handler := NewAuthHandler(nil, reader, logger)

			req := httptest.NewRequest(http.MethodGet, "/auth/audit"+tt.query, nil)
			w := httptest.NewRecorder()

			handler.HandleAuditList(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `{"decisions":[],"count":0}`, w.Body.String())
			reader.AssertExpectations(t)
		})
	}

	for _, raw := range []string{"0", "-3", "ten"} {
		t.Run("rejects limit "+raw, func(t *testing.T) {
			reader := new(MockAuditReader)
			handler := NewAuthHandler(nil, reader, logger)

			req := httptest.NewRequest(http.MethodGet, "/auth/audit?limit="+raw, nil)
			w := httptest.NewRecorder()

			handler.HandleAuditList(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			reader.AssertNotCalled(t, "Recent", mock.Anything, mock.Anything)
		})
	}

	t.Run("store failure", func(t *testing.T) {
		reader := new(MockAuditReader)
		reader.On("Recent", mock.Anything, 50).Return(nil, errors.New("connection reset"))
		handler := NewAuthHandler(nil, reader, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditList(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})

	t.Run("auditing disabled", func(t *testing.T) {
		handler := NewAuthHandler(nil, nil, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditList(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleAuditSummary(t *testing.T) {
	logger := zap.NewNop()

	t.Run("counts per outcome", func(t *testing.T) {
		reader := new(MockAuditReader)
		reader.On("Summary", mock.Anything).Return(map[models.DecisionOutcome]int64{
			models.OutcomeAllow: 12,
			models.OutcomeDeny:  5,
		}, nil)
		handler := NewAuthHandler(nil, reader, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit/summary", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditSummary(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var response AuditSummaryResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, AuditSummaryResponse{Allow: 12, Deny: 5, Total: 17}, response)
	})

	t.Run("empty store", func(t *testing.T) {
		reader := new(MockAuditReader)
		reader.On("Summary", mock.Anything).Return(map[models.DecisionOutcome]int64{}, nil)
		handler := NewAuthHandler(nil, reader, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit/summary", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditSummary(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"allow":0,"deny":0,"total":0}`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		reader := new(MockAuditReader)
		reader.On("Summary", mock.Anything).Return(nil, errors.New("timeout"))
		handler := NewAuthHandler(nil, reader, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit/summary", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditSummary(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("auditing disabled", func(t *testing.T) {
		handler := NewAuthHandler(nil, nil, logger)

		req := httptest.NewRequest(http.MethodGet, "/auth/audit/summary", nil)
		w := httptest.NewRecorder()

		handler.HandleAuditSummary(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
