package services

import (
	"errors"
	"strings"
	"time"

	"github.com/authgate/backend/internal/models"
	"github.com/authgate/backend/pkg/actiontoken"
	"github.com/authgate/backend/pkg/logger"
	"gorm.io/gorm"
)

// ErrTokenConsumed marks a second redemption attempt of the same action
// token. Handlers fold it into the unified invalid-token response.
var ErrTokenConsumed = errors.New("token already consumed")

// TokenLedger makes action tokens single-use. Signature and max-age checks
// stay in the codec; the ledger only remembers which tokens were spent.
type TokenLedger struct {
	DB *gorm.DB
}

func NewTokenLedger(db *gorm.DB) *TokenLedger {
	return &TokenLedger{DB: db}
}

// Consume records the token as spent. Returns ErrTokenConsumed if the same
// token was redeemed before. The insert races against the digest unique
// index rather than checking first, so concurrent redemptions of the same
// token resolve to exactly one winner.
func (s *TokenLedger) Consume(tokenString string, purpose actiontoken.Purpose, maxAge time.Duration) error {
	row := models.ConsumedToken{
		Digest:    actiontoken.Digest(tokenString),
		Purpose:   string(purpose),
		ExpiresAt: time.Now().Add(maxAge),
	}

	if err := s.DB.Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrTokenConsumed
		}
		return err
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// StartCleanup sweeps rows whose tokens can no longer pass a max-age check.
func (s *TokenLedger) StartCleanup(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			s.cleanup()
		}
	}()
}

func (s *TokenLedger) cleanup() {
	result := s.DB.Where("expires_at < ?", time.Now()).Delete(&models.ConsumedToken{})
	if result.Error != nil {
		logger.Error("token_ledger_cleanup_failed", result.Error, nil)
		return
	}
	if result.RowsAffected > 0 {
		logger.Info("token_ledger_cleanup", map[string]interface{}{
			"removed": result.RowsAffected,
		})
	}
}
