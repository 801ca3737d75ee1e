package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bistrodesk/orderflow/pkg/enums"
)

// PaymentRecord is one append-only payment attempt against an order number.
// ID is a monotonically increasing tiebreaker for records created in the same
// instant.
type PaymentRecord struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber   int64               `gorm:"column:order_number;not null;index:idx_payment_records_order_created,priority:1"`
	Amount        decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'card'"`
	Status        enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	TransactionID string              `gorm:"column:transaction_id;not null;uniqueIndex"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime;index:idx_payment_records_order_created,priority:2,sort:desc"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
