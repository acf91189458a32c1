package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/armorylabs/armory-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// SessionClaims identifies an anonymous browsing session. The session ID is
// the cart key; no user account is involved.
type SessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// MintSessionToken issues a signed session token. An empty sessionID mints a
// fresh session.
func MintSessionToken(cfg config.SessionConfig, now time.Time, sessionID string) (string, string, error) {
	if cfg.Secret == "" {
		return "", "", fmt.Errorf("session secret is required")
	}
	if cfg.Issuer == "" {
		return "", "", fmt.Errorf("session issuer is required")
	}
	if cfg.TTL <= 0 {
		return "", "", fmt.Errorf("session ttl must be positive")
	}

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	claims := SessionClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, sessionID, nil
}

// ParseSessionToken validates the token string and returns the claims.
func ParseSessionToken(cfg config.SessionConfig, tokenString string) (*SessionClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.SessionID) == "" {
		return nil, fmt.Errorf("session token missing session id")
	}

	return claims, nil
}
