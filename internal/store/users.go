package store

import (
	"context"
	"errors"
	"fmt"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/pkg/security"
	"bitwise74/eats-api/pkg/validators"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// publicColumns is everything but the password hash.
var publicColumns = []string{"id", "email", "role", "verified", "created_at", "updated_at"}

// Users is the credential store. Emails are normalized before every read
// and write, so lookups are case-insensitive.
type Users struct {
	db     *gorm.DB
	hasher security.PasswordHasher
}

func NewUsers(db *gorm.DB, h security.PasswordHasher) *Users {
	return &Users{db: db, hasher: h}
}

// WithTx returns a copy of the store that runs every query in tx.
func (s *Users) WithTx(tx *gorm.DB) *Users {
	return &Users{db: tx, hasher: s.hasher}
}

// Create registers a new unverified user. Returns ErrDuplicateEmail if the
// email is taken, including when a concurrent insert wins the race.
func (s *Users) Create(ctx context.Context, email, password string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, role)
	}

	email = validators.NormalizeEmail(email)
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&model.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, persistence("check if user is registered", err)
	}

	if n > 0 {
		return nil, ErrDuplicateEmail
	}

	id, err := security.NewID()
	if err != nil {
		return nil, err
	}

	u := &model.User{
		ID:       id,
		Email:    email,
		Role:     role,
		Verified: false,
		Password: password,
	}

	if err := s.hashPassword(u); err != nil {
		return nil, err
	}

	if err := db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}

		return nil, persistence("create user", err)
	}

	return u, nil
}

// FindByEmail looks a user up by email. The password hash is only loaded
// when withPassword is set.
func (s *Users) FindByEmail(ctx context.Context, email string, withPassword bool) (*model.User, error) {
	q := s.db.WithContext(ctx).Where("email = ?", validators.NormalizeEmail(email))
	if !withPassword {
		q = q.Select(publicColumns)
	}

	return s.first(q, "find user by email")
}

func (s *Users) FindByID(ctx context.Context, id string) (*model.User, error) {
	q := s.db.WithContext(ctx).Select(publicColumns).Where("id = ?", id)
	return s.first(q, "find user by ID")
}

func (s *Users) first(q *gorm.DB, op string) (*model.User, error) {
	var u model.User
	if err := q.First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, persistence(op, err)
	}

	return &u, nil
}

// VerifyPassword reports whether p matches the user's stored hash. The user
// must have been loaded with its password hash.
func (s *Users) VerifyPassword(u *model.User, p string) bool {
	if u == nil || u.PasswordHash == "" {
		return false
	}

	ok, err := s.hasher.VerifyPasswd(p, u.PasswordHash)
	if err != nil {
		zap.L().Error("Failed to verify password", zap.Error(err), zap.String("userID", u.ID))
		return false
	}

	return ok
}

// Update persists the user's email. The verified flag is only written when
// the email changes, so a verification that lands after u was loaded is
// kept. A non-empty Password is hashed and stored as well. u.Verified is
// refreshed from the stored row.
func (s *Users) Update(ctx context.Context, u *model.User) error {
	u.Email = validators.NormalizeEmail(u.Email)

	fields := map[string]any{
		"email":    u.Email,
		"verified": gorm.Expr("CASE WHEN email = ? THEN verified ELSE ? END", u.Email, u.Verified),
	}

	if u.Password != "" {
		if err := s.hashPassword(u); err != nil {
			return err
		}

		fields["password_hash"] = u.PasswordHash
	}

	r := s.db.WithContext(ctx).Model(u).Updates(fields)
	if r.Error != nil {
		if errors.Is(r.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}

		return persistence("update user", r.Error)
	}

	if r.RowsAffected == 0 {
		return ErrNotFound
	}

	var stored model.User
	if err := s.db.WithContext(ctx).Select("verified").Where("id = ?", u.ID).Take(&stored).Error; err != nil {
		return persistence("reload user", err)
	}

	u.Verified = stored.Verified
	return nil
}

func (s *Users) hashPassword(u *model.User) error {
	hash, err := s.hasher.GenerateFromPassword(u.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password, %w", err)
	}

	u.PasswordHash = hash
	u.Password = ""

	return nil
}
