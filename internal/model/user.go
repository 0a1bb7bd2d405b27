// Package model defines database models
package model

import "time"

type Role int

const (
	RoleClient Role = iota
	RoleOwner
	RoleDelivery
)

func (r Role) Valid() bool {
	return r >= RoleClient && r <= RoleDelivery
}

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleOwner:
		return "owner"
	case RoleDelivery:
		return "delivery"
	}

	return "unknown"
}

// ParseRole turns a role name into a Role. An empty name is a client.
func ParseRole(s string) (Role, bool) {
	if s == "" {
		return RoleClient, true
	}

	for r := RoleClient; r.Valid(); r++ {
		if r.String() == s {
			return r, true
		}
	}

	return 0, false
}

type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"not null;default:0" json:"role"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	// Password holds a new plaintext password until the store hashes it.
	// It is never persisted.
	Password string `gorm:"-" json:"-"`
}
