package httpapi

import (
	"errors"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"gtipricing/backend/internal/domain"
)

const (
	RoleSales = "sales"
	RoleAdmin = "admin"
)

// AuthManager verifies bearer tokens issued by the sales portal. Signing
// happens elsewhere; this side only needs the shared HS256 secret.
type AuthManager struct {
	secret []byte
	issuer string
}

type pricingClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

// NewAuthManager returns nil for an empty secret, which leaves the API open.
func NewAuthManager(secret string, issuer string) *AuthManager {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &AuthManager{secret: []byte(secret), issuer: strings.TrimSpace(issuer)}
}

func (a *AuthManager) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	if !a.Enabled() {
		return domain.Actor{}, errors.New("authentication is not configured")
	}

	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.issuer))
	}

	claims := &pricingClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}
