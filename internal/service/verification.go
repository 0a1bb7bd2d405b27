package service

import (
	"context"
	"sync"
	"time"

	"bitwise74/eats-api/internal/model"
	"bitwise74/eats-api/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notifyTimeout = 30 * time.Second

// Notifier delivers verification codes to their owners.
type Notifier interface {
	NotifyVerification(ctx context.Context, email, code string) error
}

type VerificationService struct {
	store    *store.Verifications
	notifier Notifier

	// pending counts sends that are still running
	pending sync.WaitGroup
}

func NewVerificationService(s *store.Verifications, n Notifier) *VerificationService {
	return &VerificationService{store: s, notifier: n}
}

// Issue replaces any pending verification of u with a new one and sends the
// new code. Delivery problems are logged, never returned.
func (s *VerificationService) Issue(ctx context.Context, u *model.User) (*model.Verification, error) {
	v, err := s.store.Replace(ctx, u)
	if err != nil {
		return nil, err
	}

	s.Notify(ctx, u, v)
	return v, nil
}

// IssueTx is Issue without the notification, running in the caller's
// transaction. Call Notify once the transaction is committed.
func (s *VerificationService) IssueTx(ctx context.Context, tx *gorm.DB, u *model.User) (*model.Verification, error) {
	return s.store.WithTx(tx).Replace(ctx, u)
}

// Notify sends the code in the background. The request that triggered it
// may finish first, so the send gets its own deadline.
func (s *VerificationService) Notify(ctx context.Context, u *model.User, v *model.Verification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	userID, email, code := u.ID, u.Email, v.Code

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()

		if err := s.notifier.NotifyVerification(ctx, email, code); err != nil {
			zap.L().Error("Failed to send verification email",
				zap.Error(err),
				zap.String("userID", userID),
				zap.String("kind", string(NotificationFailure)),
			)
		}
	}()
}

// Drain waits until every notification started by Notify has finished or
// ctx is done. Call it after the HTTP server stopped taking requests.
func (s *VerificationService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume confirms the email of the user owning code.
func (s *VerificationService) Consume(ctx context.Context, code string) (*model.User, error) {
	return s.store.Consume(ctx, code)
}
