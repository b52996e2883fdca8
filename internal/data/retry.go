package data

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

// RetryPolicy bounds the retries of one outbound call
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetryAfter   time.Duration // Cap on platform-provided wait hints
}

// DefaultRetryPolicy returns the policy used in production
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetryAfter:   30 * time.Second,
	}
}

// RetryingMessenger paces every outbound call through a shared rate limiter
// and retries rate-limited or transient failures with exponential backoff.
// Terminal failures (forbidden, not found, rejected, too old) return at once.
// CreateThread is retried only when rate limited, since a transient failure
// may hide a topic that was created.
type RetryingMessenger struct {
	next    repo.Messenger
	limiter *rate.Limiter
	policy  RetryPolicy
	logger  *slog.Logger
}

var _ repo.Messenger = (*RetryingMessenger)(nil)

// NewRetryingMessenger wraps next. ratePerSecond <= 0 disables pacing.
func NewRetryingMessenger(next repo.Messenger, ratePerSecond float64, policy RetryPolicy, logger *slog.Logger) *RetryingMessenger {
	limit := rate.Inf
	burst := 1
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
		burst = int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingMessenger{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
		policy:  policy,
		logger:  logger.With(slog.String("component", "messenger")),
	}
}

// retryAfterBackOff waits exactly the platform's retry-after hint, when one
// was given, instead of the next exponential interval
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > 0 {
		next = b.hint
		b.hint = 0
	}
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.hint = 0
	b.BackOff.Reset()
}

// retryAny retries every retryable delivery failure
func retryAny(de *domain.DeliveryError) bool {
	return de.Retryable()
}

// retryRateLimited retries only failures the platform rejected before
// executing the call. Used for calls that are not idempotent.
func retryRateLimited(de *domain.DeliveryError) bool {
	return de.Kind == domain.DeliveryRateLimited
}

func (m *RetryingMessenger) do(ctx context.Context, op string, retryable func(*domain.DeliveryError) bool, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.policy.InitialInterval
	b.MaxInterval = m.policy.MaxInterval
	b.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(b, uint64(m.policy.MaxAttempts-1))}
	policy := backoff.WithContext(hinted, ctx)

	attempt := 0
	operation := func() error {
		attempt++
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var de *domain.DeliveryError
		if !errors.As(err, &de) || !retryable(de) {
			return backoff.Permanent(err)
		}
		hinted.hint = m.retryAfter(de)
		return err
	}

	notify := func(err error, next time.Duration) {
		m.logger.Warn("outbound call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", next),
			slog.Any("error", err))
	}

	return backoff.RetryNotify(operation, policy, notify)
}

func (m *RetryingMessenger) retryAfter(de *domain.DeliveryError) time.Duration {
	wait := de.RetryAfter
	if m.policy.MaxRetryAfter > 0 && wait > m.policy.MaxRetryAfter {
		wait = m.policy.MaxRetryAfter
	}
	return wait
}

func (m *RetryingMessenger) CreateThread(ctx context.Context, title string) (domain.ThreadID, error) {
	var threadID domain.ThreadID
	err := m.do(ctx, "create_thread", retryRateLimited, func(ctx context.Context) error {
		var err error
		threadID, err = m.next.CreateThread(ctx, title)
		return err
	})
	return threadID, err
}

func (m *RetryingMessenger) CloseThread(ctx context.Context, threadID domain.ThreadID) error {
	return m.do(ctx, "close_thread", retryAny, func(ctx context.Context) error {
		return m.next.CloseThread(ctx, threadID)
	})
}

func (m *RetryingMessenger) Send(ctx context.Context, req repo.SendRequest) (domain.MessageID, error) {
	var msgID domain.MessageID
	err := m.do(ctx, "send", retryAny, func(ctx context.Context) error {
		var err error
		msgID, err = m.next.Send(ctx, req)
		return err
	})
	return msgID, err
}

func (m *RetryingMessenger) EditText(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, text string, html bool) error {
	return m.do(ctx, "edit_text", retryAny, func(ctx context.Context) error {
		return m.next.EditText(ctx, chatID, msgID, text, html)
	})
}

func (m *RetryingMessenger) EditCaption(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID, caption string) error {
	return m.do(ctx, "edit_caption", retryAny, func(ctx context.Context) error {
		return m.next.EditCaption(ctx, chatID, msgID, caption)
	})
}

func (m *RetryingMessenger) Pin(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error {
	return m.do(ctx, "pin", retryAny, func(ctx context.Context) error {
		return m.next.Pin(ctx, chatID, msgID)
	})
}

func (m *RetryingMessenger) Delete(ctx context.Context, chatID domain.ChatID, msgID domain.MessageID) error {
	return m.do(ctx, "delete", retryAny, func(ctx context.Context) error {
		return m.next.Delete(ctx, chatID, msgID)
	})
}
