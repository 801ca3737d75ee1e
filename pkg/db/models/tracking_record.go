package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/pkg/enums"
)

// TrackingItem is the item snapshot carried on a tracking record.
type TrackingItem struct {
	ItemName  string          `json:"item_name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// TrackingRecord holds the fulfillment state of one order. It is keyed by the
// order number and never deleted.
type TrackingRecord struct {
	ID                   uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber          int64                `gorm:"column:order_number;not null;uniqueIndex"`
	Status               enums.TrackingStatus `gorm:"column:status;type:text;not null;default:'preparation'"`
	Items                []TrackingItem       `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Total                decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod        *enums.PaymentMethod `gorm:"column:payment_method;type:text"`
	EstimatedTimeMinutes int                  `gorm:"column:estimated_time_minutes;not null;default:30"`
	Notes                []string             `gorm:"column:notes;type:jsonb;serializer:json;not null"`
	CreatedAt            time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
