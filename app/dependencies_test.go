package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/inventory-authz/config"
	"github.com/upb/inventory-authz/internal/auth"
	"github.com/upb/inventory-authz/models"
	"go.uber.org/zap/zaptest"
)

const testSecret = "dependencies-test-secret-32-characters"

func TestNewDependencies(t *testing.T) {
	t.Run("in-memory audit store", func(t *testing.T) {
		ctx := context.Background()
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, testConfig(), logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.Nil(t, deps.DB)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.Metrics)

		// Verify authorization
		assert.NotNil(t, deps.Codec)
		assert.NotNil(t, deps.Validator)
		assert.NotNil(t, deps.Authz)
		assert.NotNil(t, deps.AuthMiddleware)

		// Verify audit
		assert.NotNil(t, deps.AuditLogs)
		require.NotNil(t, deps.Audit)
		assert.True(t, deps.Audit.GetStats().Started)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("audit disabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Audit.Enabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Nil(t, deps.AuditLogs)
		assert.Nil(t, deps.Audit)
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("metrics disabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig()
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Nil(t, deps.Registry)
		assert.Nil(t, deps.Metrics)
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("short secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.SecretKey = "too-short"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, auth.ErrSecretTooShort)
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.Algorithm = "RS256"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, auth.ErrUnsupportedAlgorithm)
	})

	t.Run("missing route policy file", func(t *testing.T) {
		cfg := testConfig()
		cfg.Auth.RoutePolicyFile = filepath.Join(t.TempDir(), "absent.yaml")

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize authorization")
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig()
		cfg.Database = &config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "authz",
			Password: "authz",
			Database: "authz_test",
			SSLMode:  "disable",
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestRoutePolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routes.yaml")
	policy := `
public:
  exact: ["/healthz"]
routes:
  - pattern: /productos
    resource: products
  - pattern: /bodegas
    resource: products
`
	require.NoError(t, os.WriteFile(path, []byte(policy), 0o600))

	cfg := testConfig()
	cfg.Auth.RoutePolicyFile = path

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(context.Background())

	res, act, err := deps.Validator.ResolveRequiredPermission("/bodegas/1", http.MethodGet)
	require.NoError(t, err)
	assert.Equal(t, auth.ResourceProducts, res)
	assert.Equal(t, auth.ActionRead, act)

	// the file replaced the default table
	_, _, err = deps.Validator.ResolveRequiredPermission("/clientes", http.MethodGet)
	assert.ErrorIs(t, err, auth.ErrInsufficientPermissions)

	// and its public list replaced the defaults
	assert.True(t, deps.Validator.IsPublicRoute("/healthz"))
	assert.False(t, deps.Validator.IsPublicRoute("/auth/me"))
}

func TestDecisionsReachAuditStore(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	ok, payload := deps.Authz.AuthorizeRequest("", "/productos", http.MethodGet, auth.RequestMeta{RequestID: "req-9"})
	assert.False(t, ok)
	assert.Nil(t, payload)

	// Close flushes the queue
	require.NoError(t, deps.Close(ctx))

	logs, err := deps.AuditLogs.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.OutcomeDeny, logs[0].Outcome)
	assert.Equal(t, "missing_token", logs[0].Reason)
	assert.Equal(t, "req-9", logs[0].RequestID)

	count, err := testutil.GatherAndCount(deps.Registry, "test_authz_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDependenciesClose(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		ctx := context.Background()

		deps, err := NewDependencies(ctx, testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Close should succeed
		assert.NoError(t, deps.Close(ctx))

		// Second close should not error
		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("expired context still drains audit queue", func(t *testing.T) {
		deps, err := NewDependencies(context.Background(), testConfig(), zaptest.NewLogger(t))
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			deps.Authz.AuthorizeRequest("", "/productos", http.MethodGet, auth.RequestMeta{})
		}

		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()
		require.NoError(t, deps.Close(ctx))

		logs, err := deps.AuditLogs.ListRecent(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, logs, 5)
	})
}

// Test helpers

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			SecretKey:          testSecret,
			Algorithm:          "HS256",
			MinTokenLength:     auth.DefaultMinTokenLength,
			InternalHeader:     auth.DefaultInternalHeader,
			GatewayTokenHeader: auth.DefaultGatewayTokenHeader,
		},
		Audit: config.AuditConfig{
			Enabled:        true,
			BufferSize:     100,
			Workers:        1,
			MemoryCapacity: 100,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:         "debug",
			LogFormat:        "json",
			MetricsEnabled:   true,
			MetricsNamespace: "test",
		},
	}
}
