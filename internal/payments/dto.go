package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

// RecordPaymentInput captures a single payment attempt.
type RecordPaymentInput struct {
	OrderNumber   int64
	Amount        decimal.Decimal
	PaymentMethod enums.PaymentMethod
}

// RecordResult is returned for a successfully stored payment attempt.
type RecordResult struct {
	OrderNumber   int64               `json:"order_number"`
	Amount        string              `json:"amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
}

// UpdatePaymentStatusInput targets TransactionID when set, otherwise the
// order's most recent payment record.
type UpdatePaymentStatusInput struct {
	OrderNumber   int64
	TransactionID string
	Status        enums.PaymentStatus
}

// StatusView summarizes the most recent payment attempt of an order.
type StatusView struct {
	OrderNumber   int64               `json:"order_number"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        string              `json:"amount"`
	TransactionID string              `json:"transaction_id"`
	CreatedAt     time.Time           `json:"created_at"`
}

// PaymentDTO is the API shape of a payment record.
type PaymentDTO struct {
	ID            int64               `json:"id"`
	OrderNumber   int64               `json:"order_number"`
	Amount        string              `json:"amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.PaymentStatus `json:"status"`
	TransactionID string              `json:"transaction_id"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func NewPaymentDTO(record models.PaymentRecord) PaymentDTO {
	return PaymentDTO{
		ID:            record.ID,
		OrderNumber:   record.OrderNumber,
		Amount:        record.Amount.StringFixed(2),
		PaymentMethod: record.PaymentMethod,
		Status:        record.Status,
		TransactionID: record.TransactionID,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

// PaymentRecordedEvent is the outbox payload for a new payment attempt.
type PaymentRecordedEvent struct {
	OrderNumber   int64               `json:"order_number"`
	Amount        string              `json:"amount"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	TransactionID string              `json:"transaction_id"`
	Status        enums.PaymentStatus `json:"status"`
}

// PaymentStatusChangedEvent is the outbox payload for a status update.
type PaymentStatusChangedEvent struct {
	OrderNumber   int64               `json:"order_number"`
	TransactionID string              `json:"transaction_id"`
	Previous      enums.PaymentStatus `json:"previous_status"`
	Status        enums.PaymentStatus `json:"status"`
}
