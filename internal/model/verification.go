package model

import "time"

// Verification is the pending email confirmation of a single user.
type Verification struct {
	ID        string    `gorm:"primaryKey"`
	Code      string    `gorm:"uniqueIndex;not null"`
	UserID    string    `gorm:"uniqueIndex;not null"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}
