package tracking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

// CreateTrackingInput seeds a tracking record for an existing order.
type CreateTrackingInput struct {
	OrderNumber int64
	Items       []models.TrackingItem
	Total       decimal.Decimal
}

type TrackingItemDTO struct {
	ItemName  string `json:"item_name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// TrackingDTO is the API shape of a tracking record.
type TrackingDTO struct {
	OrderNumber          int64                `json:"order_number"`
	Status               enums.TrackingStatus `json:"status"`
	Items                []TrackingItemDTO    `json:"items"`
	Total                string               `json:"total"`
	PaymentMethod        *enums.PaymentMethod `json:"payment_method"`
	EstimatedTimeMinutes int                  `json:"estimated_time_minutes"`
	Notes                []string             `json:"notes"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

func NewTrackingDTO(record *models.TrackingRecord) TrackingDTO {
	items := make([]TrackingItemDTO, 0, len(record.Items))
	for _, item := range record.Items {
		items = append(items, TrackingItemDTO{
			ItemName:  item.ItemName,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Quantity:  item.Quantity,
		})
	}
	notes := record.Notes
	if notes == nil {
		notes = []string{}
	}
	return TrackingDTO{
		OrderNumber:          record.OrderNumber,
		Status:               record.Status,
		Items:                items,
		Total:                record.Total.StringFixed(2),
		PaymentMethod:        record.PaymentMethod,
		EstimatedTimeMinutes: record.EstimatedTimeMinutes,
		Notes:                notes,
		CreatedAt:            record.CreatedAt,
		UpdatedAt:            record.UpdatedAt,
	}
}

// TrackingUpdatedEvent is the outbox payload emitted for every tracking
// mutation. Change names the field that moved.
type TrackingUpdatedEvent struct {
	OrderNumber          int64                `json:"order_number"`
	Change               string               `json:"change"`
	Status               enums.TrackingStatus `json:"status"`
	PreviousStatus       enums.TrackingStatus `json:"previous_status,omitempty"`
	EstimatedTimeMinutes int                  `json:"estimated_time_minutes"`
	PaymentMethod        *enums.PaymentMethod `json:"payment_method,omitempty"`
	NoteCount            int                  `json:"note_count"`
}

const (
	changeCreated       = "created"
	changeStatus        = "status"
	changeEstimatedTime = "estimated_time"
	changeNote          = "note"
	changePaymentMethod = "payment_method"
)
