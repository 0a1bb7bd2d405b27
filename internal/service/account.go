// Package service contains the account lifecycle and everything it needs
// to deliver verification codes
package service

import (
	"context"
	"errors"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/internal/store"
	"bitwise74/eats-api/pkg/security"
	"bitwise74/eats-api/pkg/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountService sequences the credential store, verification service and
// token service. None of its methods return errors; failures are reported
// through Result.
type AccountService struct {
	db            *gorm.DB
	users         *store.Users
	verifications *VerificationService
	tokens        *security.TokenService
}

func NewAccountService(db *gorm.DB, u *store.Users, v *VerificationService, t *security.TokenService) *AccountService {
	return &AccountService{
		db:            db,
		users:         u,
		verifications: v,
		tokens:        t,
	}
}

// EditProfileInput holds the fields to change. Nil or empty fields are
// left alone.
type EditProfileInput struct {
	Email    *string
	Password *string
}

// CreateAccount registers a user and issues its first verification. The
// code is sent once both are stored.
func (s *AccountService) CreateAccount(ctx context.Context, email, password string, role model.Role) Result[*model.User] {
	var (
		u *model.User
		v *model.Verification
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error

		u, err = s.users.WithTx(tx).Create(ctx, email, password, role)
		if err != nil {
			return err
		}

		v, err = s.verifications.IssueTx(ctx, tx, u)
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return fail[*model.User](DuplicateEmail)
		}

		zap.L().Error("Failed to create account", zap.Error(err))
		return fail[*model.User](CreateAccountFailed)
	}

	s.verifications.Notify(ctx, u, v)
	return succeed(u)
}

// Login checks the credentials and returns a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) Result[string] {
	u, err := s.users.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail[string](UserNotFound)
		}

		zap.L().Error("Failed to look up user", zap.Error(err))
		return fail[string](LoginFailed)
	}

	if !s.users.VerifyPassword(u, password) {
		return fail[string](WrongPassword)
	}

	token, err := s.tokens.Sign(u.ID)
	if err != nil {
		zap.L().Error("Failed to sign token", zap.Error(err), zap.String("userID", u.ID))
		return fail[string](LoginFailed)
	}

	return succeed(token)
}

func (s *AccountService) FindByID(ctx context.Context, id string) Result[*model.User] {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fail[*model.User](UserNotFound)
		}

		zap.L().Error("Failed to look up user", zap.Error(err), zap.String("userID", id))
		return fail[*model.User](PersistenceFailure)
	}

	return succeed(u)
}

// EditProfile applies in to the user. A new email resets the verified flag
// and replaces the pending verification, so older codes stop working.
func (s *AccountService) EditProfile(ctx context.Context, userID string, in EditProfileInput) Result[*model.User] {
	var (
		u *model.User
		v *model.Verification
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		var err error

		u, err = users.FindByID(ctx, userID)
		if err != nil {
			return err
		}

		emailChanged := false
		if in.Email != nil && *in.Email != "" && validators.NormalizeEmail(*in.Email) != u.Email {
			u.Email = *in.Email
			u.Verified = false
			emailChanged = true
		}

		if in.Password != nil && *in.Password != "" {
			u.Password = *in.Password
		}

		if err := users.Update(ctx, u); err != nil {
			return err
		}

		if emailChanged {
			v, err = s.verifications.IssueTx(ctx, tx, u)
		}

		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fail[*model.User](UserNotFound)
		case errors.Is(err, store.ErrDuplicateEmail):
			return fail[*model.User](DuplicateEmail)
		}

		zap.L().Error("Failed to update profile", zap.Error(err), zap.String("userID", userID))
		return fail[*model.User](UpdateProfileFailed)
	}

	if v != nil {
		s.verifications.Notify(ctx, u, v)
	}

	return succeed(u)
}

// VerifyEmail consumes a verification code and returns the user it
// verified.
func (s *AccountService) VerifyEmail(ctx context.Context, code string) Result[*model.User] {
	u, err := s.verifications.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrVerificationNotFound) {
			return fail[*model.User](VerificationNotFound)
		}

		zap.L().Error("Failed to verify email", zap.Error(err))
		return fail[*model.User](VerifyEmailFailed)
	}

	return succeed(u)
}

// KindOf maps an error from the stores or the token service to its kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrDuplicateEmail):
		return DuplicateEmail
	case errors.Is(err, store.ErrNotFound):
		return UserNotFound
	case errors.Is(err, store.ErrVerificationNotFound):
		return VerificationNotFound
	case errors.Is(err, security.ErrInvalidSignature):
		return InvalidSignature
	case errors.Is(err, security.ErrMalformed), errors.Is(err, security.ErrExpired):
		return Malformed
	}

	return PersistenceFailure
}
