package store

import (
	"context"
	"errors"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/pkg/security"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Verifications stores at most one pending verification per user.
type Verifications struct {
	db *gorm.DB
}

func NewVerifications(db *gorm.DB) *Verifications {
	return &Verifications{db: db}
}

func (s *Verifications) WithTx(tx *gorm.DB) *Verifications {
	return &Verifications{db: tx}
}

// Replace drops any pending verification of u and stores a new one with a
// fresh code. Older codes stop working once this returns.
func (s *Verifications) Replace(ctx context.Context, u *model.User) (*model.Verification, error) {
	id, err := security.NewID()
	if err != nil {
		return nil, err
	}

	code, err := security.NewVerificationCode()
	if err != nil {
		return nil, err
	}

	v := &model.Verification{
		ID:     id,
		Code:   code,
		UserID: u.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", u.ID).Delete(&model.Verification{}).Error; err != nil {
			return persistence("delete stale verification", err)
		}

		if err := tx.Omit(clause.Associations).Create(v).Error; err != nil {
			return persistence("create verification", err)
		}

		return nil
	})
	if err != nil {
		return nil, wrapTx("replace verification", err)
	}

	v.User = u
	return v, nil
}

// FindByCode returns the verification with its owning user.
func (s *Verifications) FindByCode(ctx context.Context, code string) (*model.Verification, error) {
	var v model.Verification

	err := s.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select(publicColumns) }).
		Where("code = ?", code).
		First(&v).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVerificationNotFound
		}

		return nil, persistence("get verification", err)
	}

	return &v, nil
}

// Consume deletes the verification matching code and marks its user as
// verified in a single transaction. Only one caller can consume a code;
// everyone else gets ErrVerificationNotFound.
func (s *Verifications) Consume(ctx context.Context, code string) (*model.User, error) {
	var u *model.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.WithTx(tx).FindByCode(ctx, code)
		if err != nil {
			return err
		}

		if v.User == nil {
			return ErrVerificationNotFound
		}

		r := tx.Where("id = ? AND code = ?", v.ID, code).Delete(&model.Verification{})
		if r.Error != nil {
			return persistence("delete verification", r.Error)
		}

		// Someone else consumed it between the read and the delete
		if r.RowsAffected != 1 {
			return ErrVerificationNotFound
		}

		if err := tx.Model(v.User).Update("verified", true).Error; err != nil {
			return persistence("mark user as verified", err)
		}

		v.User.Verified = true
		u = v.User

		return nil
	})
	if err != nil {
		return nil, wrapTx("consume verification", err)
	}

	return u, nil
}

// wrapTx leaves store errors alone and wraps failures of the transaction
// itself (begin/commit).
func wrapTx(op string, err error) error {
	if errors.Is(err, ErrVerificationNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}

	return persistence(op, err)
}
