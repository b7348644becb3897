package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSecretLength is the shortest accepted signing secret.
	MinSecretLength = 32

	// DefaultMinTokenLength rejects obviously truncated tokens before parsing.
	DefaultMinTokenLength = 20

	// DefaultAlgorithm is used when none is configured.
	DefaultAlgorithm = "HS256"

	bearerScheme = "bearer"
)

var (
	// ErrSecretTooShort is returned when the signing secret is missing or short.
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)

	// ErrUnsupportedAlgorithm is returned for algorithms outside the HMAC family.
	ErrUnsupportedAlgorithm = errors.New("unsupported jwt algorithm")
)

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// CodecConfig holds configuration for TokenCodec
type CodecConfig struct {
	Secret         string
	Algorithm      string
	MinTokenLength int
}

// TokenCodec verifies raw tokens into TokenPayloads. It holds no mutable
// state and is safe for concurrent use.
type TokenCodec struct {
	secret         []byte
	method         *jwt.SigningMethodHMAC
	minTokenLength int
	now            func() time.Time
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec. A missing or short secret is an error.
func NewTokenCodec(cfg CodecConfig, opts ...CodecOption) (*TokenCodec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	method, ok := signingMethods[strings.ToUpper(cfg.Algorithm)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultMinTokenLength
	}

	c := &TokenCodec{
		secret:         []byte(cfg.Secret),
		method:         method,
		minTokenLength: cfg.MinTokenLength,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Algorithm returns the signing algorithm name.
func (c *TokenCodec) Algorithm() string {
	return c.method.Alg()
}

// ExtractFromHeader pulls the token out of an Authorization header value.
// It returns "" with no error when the header is absent or uses another scheme.
func (c *TokenCodec) ExtractFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", nil
	}

	fields := strings.Fields(header)
	if !strings.EqualFold(fields[0], bearerScheme) {
		return "", nil
	}
	if len(fields) == 1 {
		return "", invalidToken("bearer token is missing", nil)
	}
	if len(fields) > 2 {
		return "", invalidToken("malformed authorization header", nil)
	}

	token := fields[1]
	if len(token) < c.minTokenLength {
		return "", invalidToken("token is too short", nil)
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return "", invalidToken("token must have three segments", nil)
	}
	for _, s := range segments {
		if s == "" {
			return "", invalidToken("token has an empty segment", nil)
		}
	}
	return token, nil
}

// Decode verifies the signature and claims of token.
func (c *TokenCodec) Decode(token string) (*TokenPayload, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithJSONNumber(),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, expiredToken(err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, invalidToken("token signature is invalid", err)
		case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
			return nil, invalidToken("token is missing required claims", err)
		default:
			return nil, invalidToken("token could not be parsed", err)
		}
	}

	payload, err := payloadFromClaims(claims)
	if err != nil {
		return nil, err
	}

	// checked again independently of the library
	if payload.Expired(c.now()) {
		return nil, expiredToken(nil)
	}
	return payload, nil
}

// Encode signs payload in the wire format. Token issuance belongs to the
// identity service; this exists for tests and local tooling.
func (c *TokenCodec) Encode(payload TokenPayload) (string, error) {
	if !payload.Role.Valid() {
		return "", fmt.Errorf("cannot encode unknown role %q", payload.Role)
	}
	claims := jwt.MapClaims{
		"user_id": payload.UserID,
		"role":    string(payload.Role),
		"exp":     payload.ExpiresAt.Unix(),
	}
	if payload.IssuedAt != nil {
		claims["iat"] = payload.IssuedAt.Unix()
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func payloadFromClaims(claims jwt.MapClaims) (*TokenPayload, error) {
	for _, name := range []string{"user_id", "role", "exp"} {
		if _, ok := claims[name]; !ok {
			return nil, invalidToken(fmt.Sprintf("token is missing claim %q", name), nil)
		}
	}

	userID, err := userIDClaim(claims["user_id"])
	if err != nil {
		return nil, err
	}

	rawRole, ok := claims["role"].(string)
	if !ok {
		return nil, invalidToken("claim \"role\" must be a string", nil)
	}
	role, err := ParseRole(rawRole)
	if err != nil {
		return nil, invalidToken(err.Error(), nil)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, invalidToken("claim \"exp\" must be numeric", err)
	}

	payload := &TokenPayload{
		UserID:    userID,
		Role:      role,
		ExpiresAt: exp.Time,
	}

	if _, present := claims["iat"]; present {
		iat, err := claims.GetIssuedAt()
		if err != nil || iat == nil {
			return nil, invalidToken("claim \"iat\" must be numeric", err)
		}
		issued := iat.Time
		payload.IssuedAt = &issued
	}
	return payload, nil
}

// userIDClaim accepts a non-empty string or an integral number.
func userIDClaim(v interface{}) (string, error) {
	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return "", invalidToken("claim \"user_id\" is empty", nil)
		}
		return id, nil
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return "", invalidToken("claim \"user_id\" must be an integer", err)
		}
		return strconv.FormatInt(n, 10), nil
	case float64:
		if id != float64(int64(id)) {
			return "", invalidToken("claim \"user_id\" must be an integer", nil)
		}
		return strconv.FormatInt(int64(id), 10), nil
	}
	return "", invalidToken("claim \"user_id\" must be a string or integer", nil)
}
