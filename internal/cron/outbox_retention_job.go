package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPruneAttempts   = 10
	pruneBatchSize         = 500
	maxPruneBatches        = 20
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPruner
	// Retention is how long relayed and parked events are kept.
	Retention time.Duration
	// MinAttempts marks an unpublished event as parked. Keep it equal to the
	// relay's max attempts so retryable rows are never pruned.
	MinAttempts int
}

// outboxRetentionJob deletes expired outbox rows in bounded batches, one
// transaction per batch, and stops after maxPruneBatches so a large backlog
// is worked off across several ticks.
type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	pruner      outboxPruner
	retention   time.Duration
	minAttempts int
	batchSize   int
	maxBatches  int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}

	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		pruner:      params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		batchSize:   pruneBatchSize,
		maxBatches:  maxPruneBatches,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultPruneAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)

	var total int64
	batches := 0
	for batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.pruner.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts, j.batchSize)
			deleted = n
			return err
		})
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		batches++
		total += deleted
		if deleted < int64(j.batchSize) {
			break
		}
	}

	fields := map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"batches":      batches,
		"rows_deleted": total,
	}
	if batches == j.maxBatches {
		j.logg.Warn(j.logg.WithFields(ctx, fields), "outbox retention stopped at batch limit")
		return nil
	}
	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}
