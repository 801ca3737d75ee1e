package payments

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
)

// Repository manages persistence for payment records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PaymentRecord) error
	Latest(ctx context.Context, orderNumber int64, forUpdate bool) (*models.PaymentRecord, error)
	FindByTransactionID(ctx context.Context, transactionID string, forUpdate bool) (*models.PaymentRecord, error)
	ListByOrderNumber(ctx context.Context, orderNumber int64) ([]models.PaymentRecord, error)
	UpdateStatus(ctx context.Context, id int64, status enums.PaymentStatus) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Latest(ctx context.Context, orderNumber int64, forUpdate bool) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("order_number = ?", orderNumber).
		Order("created_at DESC").
		Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string, forUpdate bool) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("transaction_id = ?", transactionID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByOrderNumber returns the order's records, newest first. The serial id
// orders records created in the same instant.
func (r *repository) ListByOrderNumber(ctx context.Context, orderNumber int64) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status enums.PaymentStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status})
	return res.RowsAffected, res.Error
}
