// Package sequence hands out order numbers. Every strategy guarantees that a
// returned number is greater than any number it returned before; uniqueness
// under concurrent writers comes either from the strategy itself (counter,
// redis) or from the unique constraint plus Reserve's retry loop (max).
package sequence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/config"
)

// Allocator yields the next order number.
type Allocator interface {
	Next(ctx context.Context) (int64, error)
	Strategy() string
}

type counterStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	SequenceKey(name string) string
}

// New builds the allocator selected by cfg.Strategy.
func New(cfg config.SequenceConfig, db *gorm.DB, store counterStore) (Allocator, error) {
	if db == nil {
		return nil, fmt.Errorf("db required for order sequence")
	}
	name := cfg.Name
	if name == "" {
		name = defaultSequenceName
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case config.SequenceStrategyCounter, "":
		return NewCounterAllocator(db, name), nil
	case config.SequenceStrategyRedis:
		if store == nil {
			return nil, fmt.Errorf("redis client required for %s sequence", config.SequenceStrategyRedis)
		}
		return NewRedisAllocator(store, name, func(ctx context.Context) (int64, error) {
			return maxOrderNumber(ctx, db)
		}), nil
	case config.SequenceStrategyMax:
		return NewMaxAllocator(db), nil
	default:
		return nil, fmt.Errorf("unknown sequence strategy %q", cfg.Strategy)
	}
}

const defaultSequenceName = "orders"

func maxOrderNumber(ctx context.Context, db *gorm.DB) (int64, error) {
	var current int64
	if err := db.WithContext(ctx).
		Raw("SELECT COALESCE(MAX(order_number), 0) FROM orders").
		Scan(&current).Error; err != nil {
		return 0, err
	}
	return current, nil
}
