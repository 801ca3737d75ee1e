package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

// ItemInput is one line submitted for a new order.
type ItemInput struct {
	ItemName  string          `json:"item_name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// PlaceOrderInput carries everything an order needs except its number.
type PlaceOrderInput struct {
	Items []ItemInput
	Total decimal.Decimal
}

// CreateOrderInput persists an order under a caller-chosen number.
type CreateOrderInput struct {
	OrderNumber int64
	Items       []ItemInput
	Total       decimal.Decimal
	Status      enums.OrderStatus
}

// OrderItemDTO is the API shape of an order line.
type OrderItemDTO struct {
	ItemName  string `json:"item_name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderDTO is the API shape of an order.
type OrderDTO struct {
	OrderNumber int64             `json:"order_number"`
	Items       []OrderItemDTO    `json:"items"`
	Total       string            `json:"total"`
	Status      enums.OrderStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func NewOrderDTO(order *models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ItemName:  item.ItemName,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
		})
	}
	return OrderDTO{
		OrderNumber: order.OrderNumber,
		Items:       items,
		Total:       order.Total.StringFixed(2),
		Status:      order.Status,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
}

// OrderPlacedEvent is the outbox payload for a newly persisted order.
type OrderPlacedEvent struct {
	OrderNumber int64             `json:"order_number"`
	Total       string            `json:"total"`
	ItemCount   int               `json:"item_count"`
	Status      enums.OrderStatus `json:"status"`
}

// OrderStatusChangedEvent is the outbox payload for a status update.
type OrderStatusChangedEvent struct {
	OrderNumber int64             `json:"order_number"`
	Previous    enums.OrderStatus `json:"previous"`
	Status      enums.OrderStatus `json:"status"`
}
