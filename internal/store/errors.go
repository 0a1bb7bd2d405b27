// Package store persists users and their pending email verifications
package store

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail       = errors.New("there is a user with that email already")
	ErrNotFound             = errors.New("user not found")
	ErrVerificationNotFound = errors.New("verification not found")
	ErrPersistence          = errors.New("persistence failure")
	ErrInvalidRole          = errors.New("invalid role")
)

func persistence(op string, err error) error {
	return fmt.Errorf("%w: failed to %s, %w", ErrPersistence, op, err)
}
