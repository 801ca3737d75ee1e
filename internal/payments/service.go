package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

type paymentMetrics interface {
	IncPaymentRecorded(method string)
}

// Service defines the payment ledger operations.
type Service interface {
	Record(ctx context.Context, input RecordPaymentInput) (*RecordResult, error)
	LatestStatus(ctx context.Context, orderNumber int64) (*StatusView, error)
	UpdateStatus(ctx context.Context, input UpdatePaymentStatusInput) (*models.PaymentRecord, error)
	History(ctx context.Context, orderNumber int64) ([]models.PaymentRecord, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics paymentMetrics
	newTxID func() string
}

// NewService wires a payment ledger. metrics may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, metrics paymentMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		metrics: metrics,
		newTxID: func() string { return NewTransactionID(time.Now()) },
	}, nil
}

// Record appends a validated payment attempt. A transaction id collision is
// reported to the caller and never retried.
func (s *service) Record(ctx context.Context, input RecordPaymentInput) (*RecordResult, error) {
	if input.OrderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not have more than 2 decimal places").
			WithDetails(map[string]any{"amount": input.Amount.String()})
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	method := input.PaymentMethod
	if method == "" {
		method = enums.DefaultPaymentMethod
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}

	record := &models.PaymentRecord{
		OrderNumber:   input.OrderNumber,
		Amount:        input.Amount,
		PaymentMethod: method,
		Status:        enums.PaymentStatusValidated,
		TransactionID: s.newTxID(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeAlreadyExists, err, "transaction id collision").
					WithDetails(map[string]any{"transaction_id": record.TransactionID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "insert payment record")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRecorded,
			AggregateType: enums.AggregatePayment,
			OrderNumber:   record.OrderNumber,
			Data: PaymentRecordedEvent{
				OrderNumber:   record.OrderNumber,
				Amount:        record.Amount.StringFixed(2),
				PaymentMethod: record.PaymentMethod,
				TransactionID: record.TransactionID,
				Status:        record.Status,
			},
		})
	})
	if err != nil {
		return nil, asStoreError(err, "record payment")
	}

	if s.metrics != nil {
		s.metrics.IncPaymentRecorded(method.String())
	}
	return &RecordResult{
		OrderNumber:   record.OrderNumber,
		Amount:        record.Amount.StringFixed(2),
		PaymentMethod: record.PaymentMethod,
		TransactionID: record.TransactionID,
		Status:        record.Status,
	}, nil
}

func (s *service) LatestStatus(ctx context.Context, orderNumber int64) (*StatusView, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	record, err := s.repo.Latest(ctx, orderNumber, false)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment found for order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "load latest payment")
	}
	return &StatusView{
		OrderNumber:   record.OrderNumber,
		Status:        record.Status,
		Amount:        record.Amount.StringFixed(2),
		TransactionID: record.TransactionID,
		CreatedAt:     record.CreatedAt,
	}, nil
}

// UpdateStatus changes the status of one payment record. Without a
// transaction id the most recent record of the order is targeted.
func (s *service) UpdateStatus(ctx context.Context, input UpdatePaymentStatusInput) (*models.PaymentRecord, error) {
	if input.OrderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment status %q", input.Status))
	}
	transactionID := strings.TrimSpace(input.TransactionID)

	var updated *models.PaymentRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var (
			record *models.PaymentRecord
			err    error
		)
		if transactionID != "" {
			record, err = repo.FindByTransactionID(ctx, transactionID, true)
		} else {
			record, err = repo.Latest(ctx, input.OrderNumber, true)
		}
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "load payment")
		}
		if record.OrderNumber != input.OrderNumber {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}

		previous := record.Status
		if _, err := repo.UpdateStatus(ctx, record.ID, input.Status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "update payment status")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentStatusChanged,
			AggregateType: enums.AggregatePayment,
			OrderNumber:   record.OrderNumber,
			Data: PaymentStatusChangedEvent{
				OrderNumber:   record.OrderNumber,
				TransactionID: record.TransactionID,
				Previous:      previous,
				Status:        input.Status,
			},
		}); err != nil {
			return err
		}

		updated, err = repo.FindByTransactionID(ctx, record.TransactionID, false)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "reload payment")
		}
		return nil
	})
	if err != nil {
		return nil, asStoreError(err, "update payment status")
	}
	return updated, nil
}

// History lists every attempt for the order, newest first. An order without
// payments yields an empty slice.
func (s *service) History(ctx context.Context, orderNumber int64) ([]models.PaymentRecord, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	records, err := s.repo.ListByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStore, err, "list payments")
	}
	if records == nil {
		records = []models.PaymentRecord{}
	}
	return records, nil
}

func asStoreError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStore, err, msg)
}
