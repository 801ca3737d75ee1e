package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/bistrodesk/orderflow/pkg/config"
)

// RedisAllocator relies on INCR being atomic on the server. The counter key is
// seeded once per process with SETNX from the highest persisted order number.
type RedisAllocator struct {
	store counterStore
	key   string
	seed  func(ctx context.Context) (int64, error)

	mu     sync.Mutex
	seeded bool
}

func NewRedisAllocator(store counterStore, name string, seed func(ctx context.Context) (int64, error)) *RedisAllocator {
	return &RedisAllocator{store: store, key: store.SequenceKey(name), seed: seed}
}

func (a *RedisAllocator) Strategy() string { return config.SequenceStrategyRedis }

func (a *RedisAllocator) Next(ctx context.Context) (int64, error) {
	if err := a.ensureSeeded(ctx); err != nil {
		return 0, err
	}
	value, err := a.store.Incr(ctx, a.key)
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", a.key, err)
	}
	return value, nil
}

func (a *RedisAllocator) ensureSeeded(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seeded {
		return nil
	}
	var start int64
	if a.seed != nil {
		current, err := a.seed(ctx)
		if err != nil {
			return fmt.Errorf("read current max order number: %w", err)
		}
		start = current
	}
	// SETNX leaves an existing counter untouched; only a cold key is seeded.
	if _, err := a.store.SetNX(ctx, a.key, start, 0); err != nil {
		return fmt.Errorf("seed %s: %w", a.key, err)
	}
	a.seeded = true
	return nil
}
