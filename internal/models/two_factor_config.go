package models

import (
	"time"

	"github.com/google/uuid"
)

// TwoFactorConfig holds at most one TOTP enrollment per user. Enabled is only
// flipped after the user proves possession of the secret with a valid code.
type TwoFactorConfig struct {
	BaseModel
	UserID      uuid.UUID  `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Secret      string     `json:"-" gorm:"type:text"`
	Enabled     bool       `json:"enabled" gorm:"default:false"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	User        User       `json:"-" gorm:"foreignKey:UserID"`
}
