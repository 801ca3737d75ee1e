package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/bistrodesk/orderflow/pkg/db"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// numberReserver allocates an order number and retries commit when the
// number turns out to be taken.
type numberReserver interface {
	Reserve(ctx context.Context, commit func(ctx context.Context, number int64) error) (int64, error)
}

type placementMetrics interface {
	IncPlaced()
}

// Service defines the order ledger operations.
type Service interface {
	Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetByNumber(ctx context.Context, orderNumber int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, orderNumber int64, status enums.OrderStatus) (*models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	numbers numberReserver
	metrics placementMetrics
}

// NewService builds the order ledger with the required dependencies. metrics
// may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, numbers numberReserver, metrics placementMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if numbers == nil {
		return nil, fmt.Errorf("order number reserver required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		numbers: numbers,
		metrics: metrics,
	}, nil
}

func (s *service) Place(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	items, err := normalizeItems(input.Items)
	if err != nil {
		return nil, err
	}
	total := input.Total.Round(2)
	if total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	}

	var placed *models.Order
	_, err = s.numbers.Reserve(ctx, func(ctx context.Context, number int64) error {
		order, err := s.persist(ctx, number, items, total, enums.OrderStatusPending)
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, asStoreError(err, "place order")
	}
	if s.metrics != nil {
		s.metrics.IncPlaced()
	}
	return placed, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.OrderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	items, err := normalizeItems(input.Items)
	if err != nil {
		return nil, err
	}
	if input.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	}
	status := input.Status
	if status == "" {
		status = enums.OrderStatusPending
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}
	order, err := s.persist(ctx, input.OrderNumber, items, input.Total.Round(2), status)
	if err != nil {
		return nil, asStoreError(err, "create order")
	}
	return order, nil
}

func (s *service) persist(ctx context.Context, number int64, items []ItemInput, total decimal.Decimal, status enums.OrderStatus) (*models.Order, error) {
	order := &models.Order{
		ID:          uuid.New(),
		OrderNumber: number,
		Total:       total,
		Status:      status,
		Items:       make([]models.OrderItem, 0, len(items)),
	}
	for i, item := range items {
		order.Items = append(order.Items, models.OrderItem{
			ID:        uuid.New(),
			Position:  i,
			ItemName:  item.ItemName,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeAlreadyExists, err, "duplicate order number").
					WithDetails(map[string]any{"order_number": number})
			}
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "insert order")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			OrderNumber:   number,
			Data: OrderPlacedEvent{
				OrderNumber: number,
				Total:       total.StringFixed(2),
				ItemCount:   len(order.Items),
				Status:      status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) GetByNumber(ctx context.Context, orderNumber int64) (*models.Order, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "load order")
	}
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, orderNumber int64, status enums.OrderStatus) (*models.Order, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid order status %q", status))
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByNumber(ctx, orderNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "load order")
		}
		rows, err := repo.UpdateStatus(ctx, orderNumber, status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "update order status")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			OrderNumber:   orderNumber,
			Data: OrderStatusChangedEvent{
				OrderNumber: orderNumber,
				Previous:    current.Status,
				Status:      status,
			},
		}); err != nil {
			return err
		}
		updated, err = repo.FindByNumber(ctx, orderNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, asStoreError(err, "update order status")
	}
	return updated, nil
}

func (s *service) ListAll(ctx context.Context) ([]models.Order, error) {
	orders, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "list orders")
	}
	return orders, nil
}

func normalizeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	out := make([]ItemInput, 0, len(items))
	for i, item := range items {
		name := strings.TrimSpace(item.ItemName)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name is required").
				WithDetails(map[string]any{"index": i})
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not be negative").
				WithDetails(map[string]any{"index": i})
		}
		if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must not have more than 2 decimal places").
				WithDetails(map[string]any{"index": i, "price": item.UnitPrice.String()})
		}
		qty := item.Quantity
		if qty == 0 {
			qty = 1
		}
		if qty < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive").
				WithDetails(map[string]any{"index": i})
		}
		out = append(out, ItemInput{ItemName: name, UnitPrice: item.UnitPrice, Quantity: qty})
	}
	return out, nil
}

// asStoreError keeps typed errors intact and hides anything else behind a
// store error so raw driver errors never reach callers.
func asStoreError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStore, err, msg)
}
