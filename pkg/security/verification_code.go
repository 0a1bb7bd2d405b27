package security

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	idCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	idSize    = 16
)

// NewID returns a random identifier used as a primary key.
func NewID() (string, error) {
	id, err := gonanoid.Generate(idCharset, idSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate ID, %w", err)
	}

	return id, nil
}

// NewVerificationCode returns an unguessable code for email confirmation.
func NewVerificationCode() (string, error) {
	code, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code, %w", err)
	}

	return code.String(), nil
}
