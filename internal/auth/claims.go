package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/homehub-core/internal/infrastructure/config"
)

// defaultTokenTTL applies when security.jwt.access_token_ttl is unset.
const defaultTokenTTL = 15 * time.Minute

// minSecretLength is the shortest accepted HS256 signing secret.
const minSecretLength = 32

// Claims are the JWT claims issued by the hub.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// IssueToken creates a signed HS256 token for subject.
func IssueToken(subject string, role Role, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a token's signature and expiry and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}

// Authenticator checks the household password and the tokens it issues.
type Authenticator struct {
	passwordHash string
	secret       string
	ttl          time.Duration
}

// NewAuthenticator builds an Authenticator from the security settings.
// The password hash is validated up front so a typo fails at start-up.
func NewAuthenticator(cfg config.SecurityConfig) (*Authenticator, error) {
	if len(cfg.JWT.Secret) < minSecretLength {
		return nil, fmt.Errorf("%w: jwt secret must be at least %d characters", ErrNotConfigured, minSecretLength)
	}
	if _, err := decodePHC(cfg.Auth.PasswordHash); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	return &Authenticator{
		passwordHash: cfg.Auth.PasswordHash,
		secret:       cfg.JWT.Secret,
		ttl:          time.Duration(cfg.JWT.AccessTokenTTL) * time.Minute,
	}, nil
}

// TTL is the lifetime of issued tokens.
func (a *Authenticator) TTL() time.Duration {
	if a.ttl <= 0 {
		return defaultTokenTTL
	}
	return a.ttl
}

// Login verifies password and returns an admin token.
func (a *Authenticator) Login(password string) (string, error) {
	ok, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrInvalidCredentials
	}
	return IssueToken("admin", RoleAdmin, a.secret, a.TTL())
}

// Verify parses a bearer token.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
