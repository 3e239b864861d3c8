package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	scopeAccess   = "access"
	scopeActivate = "activate"

	defaultAccessTTL     = 30 * time.Minute
	defaultActivationTTL = 24 * time.Hour
)

var (
	// ErrInvalidToken covers missing, malformed, expired, and badly signed tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

type sessionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies the two token families used by the app:
// short-lived access tokens and 24-hour account activation tokens. Both carry
// the user's email as subject; a scope claim keeps them from being
// interchangeable.
type TokenService struct {
	secret        []byte
	accessTTL     time.Duration
	activationTTL time.Duration
	leeway        time.Duration
}

// NewTokenService builds a TokenService with an HS256 signing secret.
func NewTokenService(secret string, accessTTL time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret required")
	}
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	return &TokenService{
		secret:        []byte(secret),
		accessTTL:     accessTTL,
		activationTTL: defaultActivationTTL,
		leeway:        30 * time.Second,
	}, nil
}

// AccessTTL reports the access token lifetime. Revoking a token for this
// duration outlives any remaining validity it could have.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// NewAccessToken issues a login session token for the user's email.
func (s *TokenService) NewAccessToken(email string) (string, error) {
	return s.sign(email, scopeAccess, s.accessTTL)
}

// ParseAccessToken verifies a session token and returns the subject email.
func (s *TokenService) ParseAccessToken(token string) (string, error) {
	return s.parse(token, scopeAccess)
}

// NewActivationToken issues a 24-hour token proving control of an email
// address. It is rejected by ParseAccessToken.
func (s *TokenService) NewActivationToken(email string) (string, error) {
	return s.sign(email, scopeActivate, s.activationTTL)
}

// ParseActivationToken verifies an activation token and returns the email.
func (s *TokenService) ParseActivationToken(token string) (string, error) {
	return s.parse(token, scopeActivate)
}

func (s *TokenService) sign(email, scope string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) parse(token, wantScope string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}
	claims := sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Scope != wantScope {
		return "", ErrInvalidToken
	}
	email := strings.TrimSpace(claims.Subject)
	if email == "" {
		return "", ErrInvalidToken
	}
	return email, nil
}
