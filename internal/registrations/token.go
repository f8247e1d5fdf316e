package registrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers expired, malformed and wrongly signed join tokens.
var ErrInvalidToken = errors.New("invalid join token")

// JoinClaims are the claims carried by a join-link token.
type JoinClaims struct {
	RegistrationID string `json:"registration_id"`
	WebinarID      string `json:"webinar_id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies join-link tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a token issuer with the given signing secret and
// token lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed join token for a registration.
func (t *TokenIssuer) Issue(registrationID, webinarID uuid.UUID) (string, error) {
	now := time.Now()
	claims := JoinClaims{
		RegistrationID: registrationID.String(),
		WebinarID:      webinarID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign join token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a join token, returning the registration and
// webinar ids it was issued for.
func (t *TokenIssuer) Verify(tokenString string) (registrationID, webinarID uuid.UUID, err error) {
	var claims JoinClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	registrationID, err = uuid.Parse(claims.RegistrationID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	webinarID, err = uuid.Parse(claims.WebinarID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	return registrationID, webinarID, nil
}
