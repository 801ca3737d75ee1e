package orders

import (
	"context"

	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

// Repository defines persistence operations for the orders tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByNumber(ctx context.Context, orderNumber int64) (*models.Order, error)
	List(ctx context.Context) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderNumber int64, status enums.OrderStatus) (int64, error)
	ListWithoutTracking(ctx context.Context, limit int) ([]models.Order, error)
}
