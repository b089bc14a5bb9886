package utils

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// A challenge token bridges the gap between a successful password check and
// the TOTP code submission. It proves the first factor without opening a
// session, and its jti is consumed on use so it cannot be replayed.
const challengeTokenExpiry = 5 * time.Minute

type ChallengeClaims struct {
	Username  string `json:"username"`
	TokenType string `json:"tokenType"`
	jwt.RegisteredClaims
}

func GenerateChallengeToken(username string) (string, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := ChallengeClaims{
		Username:  username,
		TokenType: "2fa_challenge",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(now.Add(challengeTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwtMethod, claims)
	return token.SignedString(jwtSecret)
}

func ValidateChallengeToken(tokenString string) (*ChallengeClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ChallengeClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtMethod {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ChallengeClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid challenge token")
	}

	if claims.TokenType != "2fa_challenge" {
		return nil, fmt.Errorf("invalid token type")
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("missing token ID")
	}

	return claims, nil
}

var consumedJTIs = make(map[string]time.Time)
var jtiMu sync.Mutex

func IsJTIValid(jti string) bool {
	jtiMu.Lock()
	defer jtiMu.Unlock()
	_, exists := consumedJTIs[jti]
	return !exists
}

func ConsumeJTI(jti string) {
	jtiMu.Lock()
	defer jtiMu.Unlock()
	consumedJTIs[jti] = time.Now()
}

func CleanupExpiredJTIs() {
	jtiMu.Lock()
	defer jtiMu.Unlock()
	now := time.Now()
	for jti, consumedAt := range consumedJTIs {
		if now.Sub(consumedAt) > challengeTokenExpiry {
			delete(consumedJTIs, jti)
		}
	}
}

func StartChallengeCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			CleanupExpiredJTIs()
		}
	}()
}
