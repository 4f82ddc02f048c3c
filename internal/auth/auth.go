// File: internal/auth/auth.go
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/apperr"
	"github.com/xkilldash9x/graphedit/internal/records"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// APIKeyPrincipal is the user id an admin API key resolves to.
const APIKeyPrincipal = "apikey"

// Claims are the JWT claims graphedit issues. The role is deliberately
// absent: it is looked up on every request so role changes apply at once.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
}

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenService creates a new TokenService.
func NewTokenService(signingKey []byte, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Issue signs a token for userID.
func (s *TokenService) Issue(userID, email string) (string, error) {
	if len(s.signingKey) == 0 {
		return "", errors.New("jwt signing key is not configured")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		UserID: userID,
		Email:  email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Validate parses tokenStr and checks its signature, issuer and expiry.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ExtractBearerToken extracts the token from an Authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// UserLookup is the part of the record store the resolver needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*schemas.User, error)
}

// Resolver turns request credentials into a Principal.
type Resolver struct {
	tokens   *TokenService
	users    UserLookup
	adminKey string
	log      *zap.Logger
}

// NewResolver creates a Resolver. An empty adminKey disables API keys.
func NewResolver(tokens *TokenService, users UserLookup, adminKey string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tokens: tokens, users: users, adminKey: adminKey, log: logger.Named("auth")}
}

// Bearer resolves an Authorization header. No header yields the guest
// principal; a bad or expired token, or an unknown user, is an error.
func (r *Resolver) Bearer(ctx context.Context, authHeader string) (schemas.Principal, error) {
	const op = "auth"
	raw := ExtractBearerToken(authHeader)
	if raw == "" {
		if authHeader != "" {
			return schemas.Guest, apperr.Unauthenticated(op, "malformed authorization header")
		}
		return schemas.Guest, nil
	}
	if r.tokens == nil {
		return schemas.Guest, apperr.Unauthenticated(op, "token authentication is not configured")
	}
	claims, err := r.tokens.Validate(raw)
	if err != nil {
		r.log.Debug("Rejected bearer token", zap.Error(err))
		return schemas.Guest, apperr.Wrap(apperr.KindUnauthenticated, op, err)
	}
	if r.users == nil {
		return schemas.Guest, apperr.Unauthenticated(op, "user store is not configured")
	}
	u, err := r.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, records.ErrNotFound) {
		return schemas.Guest, apperr.Unauthenticated(op, "unknown user")
	}
	if err != nil {
		return schemas.Guest, err
	}
	return schemas.Principal{UserID: u.ID, Role: u.Role}, nil
}

// APIKey resolves an X-API-Key value to the admin principal.
func (r *Resolver) APIKey(key string) (schemas.Principal, bool) {
	if r.adminKey == "" || key == "" {
		return schemas.Guest, false
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(r.adminKey)) != 1 {
		r.log.Warn("Rejected admin API key")
		return schemas.Guest, false
	}
	return schemas.Principal{UserID: APIKeyPrincipal, Role: schemas.RoleAdmin}, true
}
