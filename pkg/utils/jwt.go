package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	jwtSecret     = []byte("change-me-in-production")
	jwtSessionTTL = 30 * time.Minute
	jwtMethod     = jwt.SigningMethodHS256
)

const sessionTokenType = "session"

type SessionClaims struct {
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

// ConfigureSessionTokens pins the signing secret, HMAC algorithm, and default
// session lifetime. Must be called once at startup, before any token is issued.
func ConfigureSessionTokens(secret, algorithm string, ttl time.Duration) error {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if ttl > 0 {
		jwtSessionTTL = ttl
	}
	switch algorithm {
	case "", "HS256":
		jwtMethod = jwt.SigningMethodHS256
	case "HS384":
		jwtMethod = jwt.SigningMethodHS384
	case "HS512":
		jwtMethod = jwt.SigningMethodHS512
	default:
		return fmt.Errorf("unsupported JWT algorithm %q", algorithm)
	}
	return nil
}

func GenerateSessionToken(username string) (string, error) {
	return GenerateSessionTokenWithTTL(username, jwtSessionTTL)
}

func GenerateSessionTokenWithTTL(username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		TokenType: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwtMethod, claims)
	return token.SignedString(jwtSecret)
}

// ValidateSessionToken accepts only tokens signed with the configured
// algorithm and carrying the session token type. Tokens of any other type,
// such as two-factor challenge tokens minted under the same secret, are
// rejected even though their signatures verify.
func ValidateSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtMethod {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.TokenType != sessionTokenType {
		return nil, fmt.Errorf("not a session token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("missing token ID")
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("missing expiration")
	}

	return claims, nil
}
