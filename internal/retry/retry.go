package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	retrygo "github.com/avast/retry-go/v4"

	"github.com/angelmondragon/offers-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/offers-backend/pkg/errors"
	"github.com/angelmondragon/offers-backend/pkg/logger"
)

const maxJitter = 50 * time.Millisecond

// Policy bounds the number and spacing of attempts for one remote call.
type Policy struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// Profiles holds the two policies used by the publish saga.
type Profiles struct {
	// Short covers ordinary network calls.
	Short Policy
	// Propagation covers edge cache propagation checks.
	Propagation Policy
}

// ProfilesFromConfig builds both profiles from env configuration.
func ProfilesFromConfig(cfg config.RetryConfig) Profiles {
	return Profiles{
		Short: Policy{
			Attempts: cfg.ShortAttempts,
			Delay:    cfg.ShortDelay,
			MaxDelay: cfg.ShortMaxDelay,
		},
		Propagation: Policy{
			Attempts: cfg.PropagationAttempts,
			Delay:    cfg.PropagationDelay,
			MaxDelay: cfg.PropagationMaxDelay,
		},
	}
}

// Retryable is implemented by errors that know whether repeating the call can help.
type Retryable interface {
	Retryable() bool
}

// Permanent marks err so Do stops retrying immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return retrygo.Unrecoverable(err)
}

// Runner executes operations under a retry policy and logs retries.
type Runner struct {
	logg *logger.Logger
}

// NewRunner returns a Runner. A nil logger disables retry logging.
func NewRunner(logg *logger.Logger) *Runner {
	return &Runner{logg: logg}
}

// Do runs fn until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. Only the last error is returned.
func (r *Runner) Do(ctx context.Context, policy Policy, op string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("retry %s: nil operation", op)
	}
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}

	err := retrygo.Do(
		func() error { return fn(ctx) },
		retrygo.Context(ctx),
		retrygo.Attempts(attempts),
		retrygo.Delay(policy.Delay),
		retrygo.MaxDelay(policy.MaxDelay),
		retrygo.MaxJitter(maxJitter),
		retrygo.DelayType(retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)),
		retrygo.RetryIf(ShouldRetry),
		retrygo.LastErrorOnly(true),
		retrygo.OnRetry(func(n uint, err error) {
			if r == nil || r.logg == nil {
				return
			}
			logCtx := r.logg.WithFields(ctx, map[string]any{
				"operation": op,
				"attempt":   n + 1,
				"error":     err.Error(),
			})
			r.logg.Warn(logCtx, "retrying remote call")
		}),
	)
	return unwrapUnrecoverable(err)
}

// ShouldRetry reports whether err is worth another attempt. Context
// cancellation, explicitly permanent errors, retry-aware remote errors
// reporting false, and typed errors whose code is not retryable all stop.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if !retrygo.IsRecoverable(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.MetadataFor(typed.Code()).Retryable
	}
	return true
}

// unwrapUnrecoverable strips the retry-go wrapper so callers see their own error.
func unwrapUnrecoverable(err error) error {
	if err == nil {
		return nil
	}
	if !retrygo.IsRecoverable(err) {
		if inner := errors.Unwrap(err); inner != nil {
			return inner
		}
	}
	return err
}
