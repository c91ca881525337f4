package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/ledger-gateway/internal/core/domain"
)

// credentialClaims is the JWT payload. The subject id travels in "sub".
type credentialClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. It holds no mutable
// state, so one instance is safe for concurrent use.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService returns a TokenService signing with secret. A nil clock
// defaults to time.Now.
func NewTokenService(secret []byte, issuer string, clock func() time.Time) *TokenService {
	if clock == nil {
		clock = time.Now
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenService{secret: key, issuer: issuer, now: clock}
}

// Issue signs a credential for identity valid for ttl from now.
func (s *TokenService) Issue(identity domain.Identity, role domain.Role, ttl time.Duration) (string, error) {
	if ttl < jwt.TimePrecision {
		return "", fmt.Errorf("issue token: ttl %s: %w", ttl, domain.ErrInvalidInput)
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	now := s.now()
	claims := credentialClaims{
		Username: identity.Username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.SubjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Verify checks the signature first, then the claim shape, then expiry.
// Errors are domain.ErrSignatureInvalid, domain.ErrTokenMalformed or
// domain.ErrTokenExpired.
func (s *TokenService) Verify(token string) (*domain.Credential, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, domain.ErrTokenMalformed
	}

	// Signature over header.payload, compared with hmac.Equal inside Verify.
	sig, err := base64.RawURLEncoding.Strict().DecodeString(parts[2])
	if err != nil {
		return nil, domain.ErrSignatureInvalid
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], sig, s.secret); err != nil {
		return nil, domain.ErrSignatureInvalid
	}

	var claims credentialClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, domain.ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, domain.ErrSignatureInvalid
		default:
			return nil, domain.ErrTokenMalformed
		}
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, domain.ErrTokenMalformed
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, domain.ErrTokenMalformed
	}

	cred := &domain.Credential{
		SubjectID: claims.Subject,
		Username:  claims.Username,
		Role:      role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if !cred.ExpiresAt.After(cred.IssuedAt) {
		return nil, domain.ErrTokenMalformed
	}
	return cred, nil
}
