package db

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
)

const (
	DefaultRetryAttempts    = 3
	DefaultRetryBaseBackoff = 25 * time.Millisecond
	DefaultRetryMaxBackoff  = 250 * time.Millisecond
)

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RetryPolicy bounds how often a conflicting transaction is replayed.
type RetryPolicy struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// OnRetry is invoked before each replay with the attempt that failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryPolicy returns 3 attempts with 25ms..250ms jittered backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    DefaultRetryAttempts,
		BaseBackoff: DefaultRetryBaseBackoff,
		MaxBackoff:  DefaultRetryMaxBackoff,
	}
}

// RetryPolicyFromConfig maps the ledger settings onto a policy.
func RetryPolicyFromConfig(cfg config.LedgerConfig) RetryPolicy {
	policy := DefaultRetryPolicy()
	if cfg.RetryAttempts > 0 {
		policy.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseBackoff > 0 {
		policy.BaseBackoff = cfg.RetryBaseBackoff
	}
	if cfg.RetryMaxBackoff > 0 {
		policy.MaxBackoff = cfg.RetryMaxBackoff
	}
	return policy
}

// Do runs fn until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. Exhaustion is reported as CONCURRENT_UPDATE.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		if err := sleep(ctx, p.backoff(attempt)); err != nil {
			return err
		}
	}

	return pkgerrors.Wrap(pkgerrors.CodeConcurrentUpdate, lastErr, "concurrent update conflict").
		WithDetails(map[string]any{"attempts": attempts})
}

// backoff doubles from BaseBackoff per attempt, caps at MaxBackoff, then
// applies full jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseBackoff
	if base <= 0 {
		base = DefaultRetryBaseBackoff
	}
	max := p.MaxBackoff
	if max < base {
		max = base
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(jitterSource.Int63n(int64(d) + 1))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
