package sequence

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bistrodesk/orderflow/pkg/config"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
)

const maxBackoff = time.Second

// Policy bounds how often a placement is retried after losing a number race.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

func PolicyFromConfig(cfg config.SequenceConfig) Policy {
	return Policy{MaxAttempts: cfg.MaxAttempts, BaseBackoff: cfg.BaseBackoff}
}

func (p Policy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	base := p.BaseBackoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

type retryObserver interface {
	IncAllocationRetry(strategy string)
	IncContention(strategy string)
}

// Reserver pairs an allocator with the retry policy used by order placement.
type Reserver struct {
	alloc   Allocator
	policy  Policy
	metrics retryObserver
}

func NewReserver(alloc Allocator, policy Policy, metrics retryObserver) *Reserver {
	return &Reserver{alloc: alloc, policy: policy, metrics: metrics}
}

// Reserve allocates a number and hands it to commit. When commit reports the
// number as taken (CodeAlreadyExists) a fresh number is allocated after an
// exponential backoff. Once the attempts are spent the call fails with
// CodeContention. Any other failure is returned as-is.
func (r *Reserver) Reserve(ctx context.Context, commit func(ctx context.Context, number int64) error) (int64, error) {
	strategy := r.alloc.Strategy()
	attempt := 0
	number, err := retry.DoValue(ctx, r.policy.backoff(), func(ctx context.Context) (int64, error) {
		attempt++
		if attempt > 1 && r.metrics != nil {
			r.metrics.IncAllocationRetry(strategy)
		}
		n, err := r.alloc.Next(ctx)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeStore, err, "allocate order number")
		}
		if err := commit(ctx, n); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists) {
				return 0, retry.RetryableError(err)
			}
			return 0, err
		}
		return n, nil
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists) {
			if r.metrics != nil {
				r.metrics.IncContention(strategy)
			}
			return 0, pkgerrors.Wrap(pkgerrors.CodeContention, err, "could not allocate a unique order number").
				WithDetails(map[string]any{"attempts": attempt, "strategy": strategy})
		}
		return 0, err
	}
	return number, nil
}
