package models

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Username     string           `json:"username" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email        string           `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string           `json:"-" gorm:"type:text;not null"`
	IsVerified   bool             `json:"isVerified" gorm:"default:false"`
	Role         UserRole         `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	TwoFactor    *TwoFactorConfig `json:"-" gorm:"foreignKey:UserID"`
}
