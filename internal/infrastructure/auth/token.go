package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/entity"
	"github.com/lord-charles/srcc-dashboard-sub000/internal/domain/imprest"
)

// DefaultTokenTTL is the lifetime of issued tokens when none is configured
const DefaultTokenTTL = 12 * time.Hour

// Claims carries the caller identity inside a bearer token
type Claims struct {
	Name       string      `json:"name"`
	Role       entity.Role `json:"role"`
	Department string      `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HMAC-signed bearer tokens
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a token service; the secret must be non-empty
func NewTokenService(secret, issuer string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the actor
func (s *TokenService) Issue(actor entity.Actor) (string, error) {
	if err := validateActor(actor); err != nil {
		return "", err
	}

	now := s.now()
	claims := Claims{
		Name:       actor.Name,
		Role:       actor.Role,
		Department: actor.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the actor it names.
// Every failure wraps imprest.ErrUnauthorized.
func (s *TokenService) Verify(tokenStr string) (entity.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return entity.Actor{}, fmt.Errorf("%w: invalid token: %v", imprest.ErrUnauthorized, err)
	}

	actor := entity.Actor{
		ID:         claims.Subject,
		Name:       claims.Name,
		Role:       claims.Role,
		Department: claims.Department,
	}
	if err := validateActor(actor); err != nil {
		return entity.Actor{}, err
	}
	return actor, nil
}

func validateActor(actor entity.Actor) error {
	if actor.ID == "" {
		return fmt.Errorf("%w: token has no subject", imprest.ErrUnauthorized)
	}
	if !actor.Role.IsValid() {
		return fmt.Errorf("%w: unknown role %q", imprest.ErrUnauthorized, actor.Role)
	}
	if actor.Role == entity.RoleHOD && actor.Department == "" {
		return fmt.Errorf("%w: hod token has no department", imprest.ErrUnauthorized)
	}
	return nil
}
