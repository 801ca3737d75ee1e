package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/bistrodesk/orderflow/pkg/db/models"
	pkgerrors "github.com/bistrodesk/orderflow/pkg/errors"
	"github.com/bistrodesk/orderflow/pkg/logger"
)

const defaultBackfillBatch = 100

type missingTrackingReader interface {
	ListWithoutTracking(ctx context.Context, limit int) ([]models.Order, error)
}

type trackingCreator interface {
	CreateFromOrder(ctx context.Context, order *models.Order) (*models.TrackingRecord, error)
}

type TrackingBackfillJobParams struct {
	Logger    *logger.Logger
	Orders    missingTrackingReader
	Tracking  trackingCreator
	BatchSize int
}

// NewTrackingBackfillJob creates tracking records for orders whose tracking
// creation never happened, e.g. after a crash between the two writes.
func NewTrackingBackfillJob(params TrackingBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Tracking == nil {
		return nil, fmt.Errorf("tracking service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	return &trackingBackfillJob{
		logg:     params.Logger,
		orders:   params.Orders,
		tracking: params.Tracking,
		batch:    batch,
	}, nil
}

type trackingBackfillJob struct {
	logg     *logger.Logger
	orders   missingTrackingReader
	tracking trackingCreator
	batch    int
}

func (j *trackingBackfillJob) Name() string { return "tracking-backfill" }

// Run handles one batch. A record created concurrently by the API counts as
// done; every other failure is collected and the loop moves on.
func (j *trackingBackfillJob) Run(ctx context.Context) error {
	orders, err := j.orders.ListWithoutTracking(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list orders without tracking: %w", err)
	}

	var (
		errs    error
		created int
		raced   int
	)
	for i := range orders {
		order := &orders[i]
		_, err := j.tracking.CreateFromOrder(ctx, order)
		switch {
		case err == nil:
			created++
		case pkgerrors.IsCode(err, pkgerrors.CodeAlreadyExists):
			raced++
		default:
			errs = multierr.Append(errs, fmt.Errorf("order %d: %w", order.OrderNumber, err))
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(orders),
		"created":    created,
		"raced":      raced,
		"failed":     len(multierr.Errors(errs)),
	}), "tracking backfill complete")
	return errs
}
