package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrInvalidAccessToken is returned for tokens that fail signature or claim checks.
var ErrInvalidAccessToken = errors.New("jwt: invalid access token")

// AccessClaims are the claims carried by staff access tokens.
type AccessClaims struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
	jwt.RegisteredClaims
}

// AccessTokenIssuer signs and verifies HS256 staff access tokens.
type AccessTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewAccessTokenIssuer constructs an issuer. The secret must not be empty.
func NewAccessTokenIssuer(secret, issuer string, ttl time.Duration) (*AccessTokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt: signing secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AccessTokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock overrides the issuer clock for deterministic tests.
func (i *AccessTokenIssuer) WithClock(clock func() time.Time) *AccessTokenIssuer {
	if clock != nil {
		i.now = clock
	}
	return i
}

// Issue signs a token for the subject.
func (i *AccessTokenIssuer) Issue(subject, username string, admin bool) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := AccessClaims{
		Username: username,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the token and returns its claims.
func (i *AccessTokenIssuer) Parse(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccessToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidAccessToken)
	}
	return claims, nil
}
