package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/config"
	dbpkg "github.com/bistrodesk/orderflow/pkg/db"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/enums"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/outbox"
)

const defaultEstimatedMinutes = 30

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transitionMetrics interface {
	IncTrackingTransition(status string)
}

// Service runs the fulfillment state machine of each order.
type Service interface {
	Create(ctx context.Context, input CreateTrackingInput) (*models.TrackingRecord, error)
	CreateFromOrder(ctx context.Context, order *models.Order) (*models.TrackingRecord, error)
	Get(ctx context.Context, orderNumber int64) (*models.TrackingRecord, error)
	SetStatus(ctx context.Context, orderNumber int64, status enums.TrackingStatus) (*models.TrackingRecord, error)
	Cancel(ctx context.Context, orderNumber int64) (*models.TrackingRecord, error)
	SetEstimatedTime(ctx context.Context, orderNumber int64, minutes int) (*models.TrackingRecord, error)
	AddNote(ctx context.Context, orderNumber int64, note string) (*models.TrackingRecord, error)
	SetPaymentMethod(ctx context.Context, orderNumber int64, method enums.PaymentMethod) (*models.TrackingRecord, error)
	QRCode(ctx context.Context, orderNumber int64) ([]byte, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	metrics transitionMetrics
	qr      QRGenerator
	cfg     config.TrackingConfig
}

// NewService wires the tracker. metrics may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, metrics transitionMetrics, cfg config.TrackingConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.DefaultEstimatedMinutes <= 0 {
		cfg.DefaultEstimatedMinutes = defaultEstimatedMinutes
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outbox,
		metrics: metrics,
		qr:      NewQRGenerator(cfg.PublicBaseURL, cfg.QRSize),
		cfg:     cfg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateTrackingInput) (*models.TrackingRecord, error) {
	if input.OrderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	if input.Total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must not be negative")
	}
	items := input.Items
	if items == nil {
		items = []models.TrackingItem{}
	}

	record := &models.TrackingRecord{
		ID:                   uuid.New(),
		OrderNumber:          input.OrderNumber,
		Status:               enums.TrackingStatusPreparation,
		Items:                items,
		Total:                input.Total.Round(2),
		EstimatedTimeMinutes: s.cfg.DefaultEstimatedMinutes,
		Notes:                []string{},
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, record); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeAlreadyExists, err, "tracking already exists for order").
					WithDetails(map[string]any{"order_number": input.OrderNumber})
			}
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "insert tracking record")
		}
		return s.emit(ctx, tx, record, changeCreated, "")
	})
	if err != nil {
		return nil, asStoreError(err, "create tracking")
	}
	s.observe(record.Status)
	return record, nil
}

// CreateFromOrder seeds tracking with the order's item and total snapshot.
func (s *service) CreateFromOrder(ctx context.Context, order *models.Order) (*models.TrackingRecord, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	items := make([]models.TrackingItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.TrackingItem{
			ItemName:  item.ItemName,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}
	return s.Create(ctx, CreateTrackingInput{
		OrderNumber: order.OrderNumber,
		Items:       items,
		Total:       order.Total,
	})
}

func (s *service) Get(ctx context.Context, orderNumber int64) (*models.TrackingRecord, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}
	record, err := s.repo.FindByNumber(ctx, orderNumber, false)
	if err != nil {
		return nil, notFoundOrStore(err)
	}
	return record, nil
}

// SetStatus moves the record to status. Terminal records only accept their
// own status again; setting the current status is a no-op.
func (s *service) SetStatus(ctx context.Context, orderNumber int64, status enums.TrackingStatus) (*models.TrackingRecord, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid tracking status %q", status))
	}
	return s.mutate(ctx, orderNumber, changeStatus, func(record *models.TrackingRecord) (bool, error) {
		if record.Status == status {
			return false, nil
		}
		if record.Status.IsTerminal() {
			return false, stateConflict(record.Status, status)
		}
		record.Status = status
		return true, nil
	})
}

// Cancel cancels any record that has not been delivered. Cancelling twice is
// a no-op.
func (s *service) Cancel(ctx context.Context, orderNumber int64) (*models.TrackingRecord, error) {
	return s.mutate(ctx, orderNumber, changeStatus, func(record *models.TrackingRecord) (bool, error) {
		switch record.Status {
		case enums.TrackingStatusCancelled:
			return false, nil
		case enums.TrackingStatusDelivered:
			return false, stateConflict(record.Status, enums.TrackingStatusCancelled)
		}
		record.Status = enums.TrackingStatusCancelled
		return true, nil
	})
}

func (s *service) SetEstimatedTime(ctx context.Context, orderNumber int64, minutes int) (*models.TrackingRecord, error) {
	if minutes < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "estimated time must not be negative")
	}
	return s.mutate(ctx, orderNumber, changeEstimatedTime, func(record *models.TrackingRecord) (bool, error) {
		record.EstimatedTimeMinutes = minutes
		return true, nil
	})
}

func (s *service) AddNote(ctx context.Context, orderNumber int64, note string) (*models.TrackingRecord, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note must not be empty")
	}
	return s.mutate(ctx, orderNumber, changeNote, func(record *models.TrackingRecord) (bool, error) {
		record.Notes = append(record.Notes, note)
		return true, nil
	})
}

func (s *service) SetPaymentMethod(ctx context.Context, orderNumber int64, method enums.PaymentMethod) (*models.TrackingRecord, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment method %q", method))
	}
	return s.mutate(ctx, orderNumber, changePaymentMethod, func(record *models.TrackingRecord) (bool, error) {
		m := method
		record.PaymentMethod = &m
		return true, nil
	})
}

// QRCode renders a PNG pointing at the public tracking page of the order.
func (s *service) QRCode(ctx context.Context, orderNumber int64) ([]byte, error) {
	if _, err := s.Get(ctx, orderNumber); err != nil {
		return nil, err
	}
	png, err := s.qr.Generate(orderNumber)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render tracking qr code")
	}
	return png, nil
}

// mutate runs change against the locked record and persists it together with
// a tracking_updated event. change reports false when nothing moved, in which
// case the record is returned unchanged.
func (s *service) mutate(ctx context.Context, orderNumber int64, kind string, change func(record *models.TrackingRecord) (bool, error)) (*models.TrackingRecord, error) {
	if orderNumber <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number must be positive")
	}

	var (
		result   *models.TrackingRecord
		previous enums.TrackingStatus
		changed  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := repo.FindByNumber(ctx, orderNumber, true)
		if err != nil {
			return notFoundOrStore(err)
		}
		previous = record.Status
		changed, err = change(record)
		if err != nil {
			return err
		}
		result = record
		if !changed {
			return nil
		}
		if record.Notes == nil {
			record.Notes = []string{}
		}
		record.UpdatedAt = time.Now().UTC()
		if err := repo.Save(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStore, err, "update tracking record")
		}
		return s.emit(ctx, tx, record, kind, previous)
	})
	if err != nil {
		return nil, asStoreError(err, "update tracking")
	}
	if changed && result.Status != previous {
		s.observe(result.Status)
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, record *models.TrackingRecord, kind string, previous enums.TrackingStatus) error {
	event := TrackingUpdatedEvent{
		OrderNumber:          record.OrderNumber,
		Change:               kind,
		Status:               record.Status,
		EstimatedTimeMinutes: record.EstimatedTimeMinutes,
		PaymentMethod:        record.PaymentMethod,
		NoteCount:            len(record.Notes),
	}
	if previous != record.Status {
		event.PreviousStatus = previous
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTrackingUpdated,
		AggregateType: enums.AggregateTracking,
		OrderNumber:   record.OrderNumber,
		Data:          event,
	})
}

func (s *service) observe(status enums.TrackingStatus) {
	if s.metrics != nil {
		s.metrics.IncTrackingTransition(status.String())
	}
}

func stateConflict(from, to enums.TrackingStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("tracking is %s and cannot move to %s", from, to)).
		WithDetails(map[string]any{"current_status": from, "requested_status": to})
}

func notFoundOrStore(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "tracking not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeStore, err, "load tracking record")
}

func asStoreError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStore, err, msg)
}
