package sequence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/config"
)

// MaxAllocator proposes MAX(order_number)+1. Two concurrent callers can get
// the same proposal; the unique constraint rejects the loser and Reserve
// retries it with a fresh proposal.
type MaxAllocator struct {
	db *gorm.DB
}

func NewMaxAllocator(db *gorm.DB) *MaxAllocator {
	return &MaxAllocator{db: db}
}

func (a *MaxAllocator) Strategy() string { return config.SequenceStrategyMax }

func (a *MaxAllocator) Next(ctx context.Context) (int64, error) {
	current, err := maxOrderNumber(ctx, a.db)
	if err != nil {
		return 0, fmt.Errorf("read max order number: %w", err)
	}
	return current + 1, nil
}
