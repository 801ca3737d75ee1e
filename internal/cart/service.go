package cart

import (
	"context"
	"fmt"

	"github.com/bistrodesk/orderflow/internal/orders"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

type orderPlacer interface {
	Place(ctx context.Context, input orders.PlaceOrderInput) (*models.Order, error)
}

// Service turns a session cart into a persisted order.
type Service interface {
	PlaceOrder(ctx context.Context, c *Cart) (*models.Order, error)
}

type service struct {
	orders orderPlacer
	logg   *logger.Logger
}

// NewService builds a cart service that places orders through the order ledger.
func NewService(orders orderPlacer, logg *logger.Logger) (Service, error) {
	if orders == nil {
		return nil, fmt.Errorf("order placer required")
	}
	return &service{orders: orders, logg: logg}, nil
}

// PlaceOrder snapshots the cart, places the order and clears the cart. The
// cart stays locked for the whole placement and is left untouched when
// placement fails.
func (s *service) PlaceOrder(ctx context.Context, c *Cart) (*models.Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	lines := c.snapshot()
	items := make([]orders.ItemInput, 0, len(lines))
	for _, line := range lines {
		items = append(items, orders.ItemInput{
			ItemName:  line.ItemName,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}

	order, err := s.orders.Place(ctx, orders.PlaceOrderInput{
		Items: items,
		Total: c.total.Round(2),
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "line_count", len(lines)), "cart placement failed: "+err.Error())
		}
		return nil, err
	}

	c.clear()
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderNumber(ctx, order.OrderNumber), "cart placed")
	}
	return order, nil
}
