package internal

import (
	"bitwise74/eats-api/internal/service"
	"bitwise74/eats-api/internal/store"
	"bitwise74/eats-api/pkg/security"

	"github.com/chenyahui/gin-cache/persist"
	"gorm.io/gorm"
)

// Deps is everything the HTTP handlers need.
type Deps struct {
	DB            *gorm.DB
	Tokens        *security.TokenService
	Users         *store.Users
	Verifications *service.VerificationService
	Accounts      *service.AccountService
	Cache         persist.CacheStore
}

// NewDeps wires the stores and services on top of db.
func NewDeps(db *gorm.DB, hasher security.PasswordHasher, tokens *security.TokenService, n service.Notifier, c persist.CacheStore) *Deps {
	users := store.NewUsers(db, hasher)
	verifications := service.NewVerificationService(store.NewVerifications(db), n)

	return &Deps{
		DB:            db,
		Tokens:        tokens,
		Users:         users,
		Verifications: verifications,
		Accounts:      service.NewAccountService(db, users, verifications, tokens),
		Cache:         c,
	}
}
