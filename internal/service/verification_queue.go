package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeVerificationMail = "email:verify"

type verificationPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// QueueNotifier hands verification mails to a Redis backed task queue so
// they survive restarts and get retried.
type QueueNotifier struct {
	client *asynq.Client
}

func NewQueueNotifier(c *asynq.Client) *QueueNotifier {
	return &QueueNotifier{client: c}
}

func (q *QueueNotifier) NotifyVerification(ctx context.Context, email, code string) error {
	payload, err := json.Marshal(verificationPayload{Email: email, Code: code})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypeVerificationMail, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)

	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue verification mail, %w", err)
	}

	return nil
}

// NewMailWorker returns the queue server that runs queued mail tasks.
func NewMailWorker(r asynq.RedisConnOpt, concurrency int) *asynq.Server {
	return asynq.NewServer(r, asynq.Config{
		Concurrency: concurrency,
		Logger:      zap.S(),
	})
}

// NewMailMux routes queued verification mails to n.
func NewMailMux(n Notifier) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVerificationMail, func(ctx context.Context, t *asynq.Task) error {
		var p verificationPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("bad verification payload, %v: %w", err, asynq.SkipRetry)
		}

		return n.NotifyVerification(ctx, p.Email, p.Code)
	})

	return mux
}

// LogNotifier only logs codes. Used when mail is disabled.
type LogNotifier struct{}

func (LogNotifier) NotifyVerification(_ context.Context, email, code string) error {
	zap.L().Info("Verification code issued", zap.String("email", email), zap.String("code", code))
	return nil
}
