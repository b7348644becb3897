package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-that-is-at-least-32-chars"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(CodecConfig{Secret: testSecret}, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return codec
}

func newTestValidator(t *testing.T, internal InternalRequestConfig) *AccessValidator {
	t.Helper()
	routes, err := NewRouteTable(DefaultRouteRules())
	require.NoError(t, err)
	return NewAccessValidator(
		MustPermissionTable(DefaultGrants()),
		routes,
		NewPublicRouteSet(DefaultPublicRoutes()),
		internal,
	)
}

// signClaims signs arbitrary claims so tests can build tokens the codec
// would never produce.
func signClaims(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func tokenFor(t *testing.T, codec *TokenCodec, userID string, role Role) string {
	t.Helper()
	token, err := codec.Encode(TokenPayload{
		UserID:    userID,
		Role:      role,
		ExpiresAt: fixedNow.Add(time.Hour),
	})
	require.NoError(t, err)
	return token
}
