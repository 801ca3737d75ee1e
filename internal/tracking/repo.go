package tracking

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrodesk/orderflow/pkg/db/models"
)

// Repository persists tracking records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.TrackingRecord) error
	FindByNumber(ctx context.Context, orderNumber int64, forUpdate bool) (*models.TrackingRecord, error)
	Save(ctx context.Context, record *models.TrackingRecord) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.TrackingRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByNumber loads the record for an order. forUpdate takes a row lock that
// is held until the surrounding transaction ends.
func (r *repository) FindByNumber(ctx context.Context, orderNumber int64, forUpdate bool) (*models.TrackingRecord, error) {
	var record models.TrackingRecord
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("order_number = ?", orderNumber).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Save writes the mutable columns back. Items, total and order number are
// fixed at creation.
func (r *repository) Save(ctx context.Context, record *models.TrackingRecord) error {
	return r.db.WithContext(ctx).
		Model(record).
		Select("status", "payment_method", "estimated_time_minutes", "notes", "updated_at").
		Updates(record).Error
}
