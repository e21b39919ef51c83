package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/internal/uuid"
)

const DefaultTokenTTL = 8 * time.Hour

var ErrInvalidToken = errors.New("invalid or expired token")

// tokenClaims are the claims carried by issued access tokens. The subject is
// the user id and the JWT id keys the SessionStore.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type tokenManager struct {
	key    []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func (tm *tokenManager) issue(user auth.User) (string, SessionRecord, string, error) {
	now := tm.now()
	jti := uuid.New()
	rec := SessionRecord{UserID: user.ID, IssuedAt: now, ExpiresAt: now.Add(tm.ttl)}
	claims := tokenClaims{
		Role: user.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tm.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(rec.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.key)
	if err != nil {
		return "", SessionRecord{}, "", fmt.Errorf("sign token: %w", err)
	}
	return signed, rec, jti, nil
}

func (tm *tokenManager) parse(raw string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return tm.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
