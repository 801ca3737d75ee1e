package sequence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/config"
)

const (
	incrementSQL = `UPDATE order_sequences SET value = value + 1 WHERE name = ? RETURNING value`
	// The WHERE clause disambiguates ON CONFLICT from a join constraint in SQLite.
	seedSQL = `INSERT INTO order_sequences (name, value)
SELECT ?, COALESCE(MAX(order_number), 0) FROM orders WHERE true
ON CONFLICT (name) DO NOTHING`
)

// CounterAllocator increments a dedicated counter row in a single statement,
// so concurrent callers never observe the same value.
type CounterAllocator struct {
	db   *gorm.DB
	name string
}

func NewCounterAllocator(db *gorm.DB, name string) *CounterAllocator {
	return &CounterAllocator{db: db, name: name}
}

func (a *CounterAllocator) Strategy() string { return config.SequenceStrategyCounter }

func (a *CounterAllocator) Next(ctx context.Context) (int64, error) {
	value, ok, err := a.increment(ctx)
	if err != nil {
		return 0, err
	}
	if ok {
		return value, nil
	}

	// First use: seed from the orders already on disk so numbering continues
	// past existing data. Concurrent seeders collapse onto one row.
	if err := a.db.WithContext(ctx).Exec(seedSQL, a.name).Error; err != nil {
		return 0, fmt.Errorf("seed order sequence %q: %w", a.name, err)
	}
	value, ok, err = a.increment(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("order sequence %q missing after seed", a.name)
	}
	return value, nil
}

func (a *CounterAllocator) increment(ctx context.Context) (int64, bool, error) {
	var value int64
	res := a.db.WithContext(ctx).Raw(incrementSQL, a.name).Scan(&value)
	if res.Error != nil {
		return 0, false, fmt.Errorf("increment order sequence %q: %w", a.name, res.Error)
	}
	return value, res.RowsAffected > 0, nil
}
