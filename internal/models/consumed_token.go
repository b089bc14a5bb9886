package models

import "time"

// ConsumedToken records the digest of a redeemed action token so that
// verification and reset links are single-use. Rows past ExpiresAt are
// swept periodically; an expired token fails its max-age check anyway.
type ConsumedToken struct {
	BaseModel
	Digest    string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Purpose   string    `json:"-" gorm:"type:varchar(40);not null"`
	ExpiresAt time.Time `json:"-" gorm:"not null;index"`
}
