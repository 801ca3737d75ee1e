package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/bistrodesk/orderflow/pkg/broker"
	"github.com/bistrodesk/orderflow/pkg/config"
	"github.com/bistrodesk/orderflow/pkg/db/models"
	"github.com/bistrodesk/orderflow/pkg/logger"
	"github.com/bistrodesk/orderflow/pkg/outbox"
)

const (
	relayName             = "outbox-publisher"
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	backlogInterval       = 30 * time.Second
)

const (
	resultPublished = "published"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
	resultTerminal  = "terminal"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
	CountPending(ctx context.Context, maxAttempts int) (int64, error)
}

type relayGuard interface {
	Claim(ctx context.Context, relay string, eventID uuid.UUID) (bool, error)
	Forget(ctx context.Context, relay string, eventID uuid.UUID) error
}

type relayMetrics interface {
	IncOutboxRelay(eventType, result string)
	SetOutboxBacklog(pending int64)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Publisher  broker.Publisher
	Repository outboxRepository
	Guard      relayGuard
	Metrics    relayMetrics
}

// Service drains outbox_events into the broker. Rows are fetched with
// SKIP LOCKED so several replicas can run side by side.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	publisher    broker.Publisher
	guard        relayGuard
	metrics      relayMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration

	lastBacklog time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Publisher == nil:
		return nil, errors.New("broker publisher is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		publisher:    params.Publisher,
		guard:        params.Guard,
		metrics:      params.Metrics,
		batchSize:    defaultBatchSize,
		maxAttempts:  defaultMaxAttempts,
		pollInterval: defaultPollInterval,
	}
	if cfg.BatchSize > 0 {
		svc.batchSize = cfg.BatchSize
	}
	if cfg.MaxAttempts > 0 {
		svc.maxAttempts = cfg.MaxAttempts
	}
	if cfg.PollIntervalMS > 0 {
		svc.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return svc, nil
}

// Run polls until ctx is cancelled. Empty polls wait one jittered interval;
// failed polls and batches where nothing could be published back off
// exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"broker", s.publisher.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	idle := idleBackoff(s.pollInterval)
	failing := errorBackoff(s.pollInterval)
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}
		s.reportBacklog(ctx)

		outcome, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait, _ = failing.Next()
		case outcome == batchProgressed:
			failing = errorBackoff(s.pollInterval)
			continue
		case outcome == batchStalled:
			// Every row failed to publish; treat it like an outage so the
			// attempt budget is not burnt in a tight loop.
			wait, _ = failing.Next()
			s.logg.Warn(s.logg.WithField(ctx, "wait", wait.String()), "outbox publisher made no progress")
		default:
			failing = errorBackoff(s.pollInterval)
			wait, _ = idle.Next()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func idleBackoff(interval time.Duration) retry.Backoff {
	return retry.WithJitter(jitterWindow, retry.NewConstant(interval))
}

func errorBackoff(interval time.Duration) retry.Backoff {
	b := retry.NewExponential(interval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(jitterWindow, b)
}

// reportBacklog publishes the pending row count at most once per
// backlogInterval.
func (s *Service) reportBacklog(ctx context.Context) {
	if s.metrics == nil || time.Since(s.lastBacklog) < backlogInterval {
		return
	}
	s.lastBacklog = time.Now()
	pending, err := s.repo.CountPending(ctx, s.maxAttempts)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox backlog count failed")
		return
	}
	s.metrics.SetOutboxBacklog(pending)
}

type batchOutcome int

const (
	batchEmpty batchOutcome = iota
	// batchProgressed means at least one row left the pending set.
	batchProgressed
	// batchStalled means rows were fetched but every publish failed.
	batchStalled
)

// processBatch relays one locked batch. A delivery failure only marks its own
// row; the transaction fails solely on bookkeeping errors.
func (s *Service) processBatch(ctx context.Context) (batchOutcome, error) {
	outcome := batchEmpty
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			outcome = batchStalled
		}
		for _, event := range events {
			resolved, err := s.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			if resolved {
				outcome = batchProgressed
			}
		}
		return nil
	})
	if err != nil {
		return batchEmpty, err
	}
	return outcome, nil
}

// relay reports whether the event left the pending set, either delivered or
// parked. A failure that will be retried reports false.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (bool, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return s.park(ctx, tx, event, envelope, fmt.Errorf("decode envelope: %w", err))
	}

	delivered, err := s.deliver(ctx, event, envelope)
	if err != nil {
		s.record(event, resultFailed)
		if event.AttemptCount+1 >= s.maxAttempts {
			return s.park(ctx, tx, event, envelope, fmt.Errorf("max publish attempts reached: %w", err))
		}
		logCtx := s.logg.WithFields(ctx, s.eventFields(event, envelope))
		logCtx = s.logg.WithFields(logCtx, map[string]any{"next_attempt": event.AttemptCount + 1, "error": err.Error()})
		s.logg.Warn(logCtx, "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
			return false, fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return false, nil
	}

	if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
		return false, fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	result, msg := resultPublished, "outbox event published"
	if !delivered {
		result, msg = resultDuplicate, "outbox event already relayed"
	}
	s.record(event, result)
	s.logg.Info(s.logg.WithFields(ctx, s.eventFields(event, envelope)), msg)
	return true, nil
}

// deliver hands the event to the broker. It reports false without error when
// the guard shows an earlier attempt already delivered this event.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) (bool, error) {
	if s.guard != nil {
		first, err := s.guard.Claim(ctx, relayName, event.ID)
		if err != nil {
			return false, fmt.Errorf("claim event: %w", err)
		}
		if !first {
			return false, nil
		}
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	err := s.publisher.Publish(publishCtx, buildMessage(event, envelope))
	if err == nil {
		return true, nil
	}
	if s.guard != nil {
		if forgetErr := s.guard.Forget(ctx, relayName, event.ID); forgetErr != nil {
			s.logg.Error(s.logg.WithField(ctx, "outbox_id", event.ID.String()), "failed to release relay claim", forgetErr)
		}
	}
	return false, err
}

// park takes an event out of rotation by raising its attempt count to the
// configured maximum.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, envelope outbox.PayloadEnvelope, cause error) (bool, error) {
	logCtx := s.logg.WithFields(ctx, s.eventFields(event, envelope))
	s.logg.Warn(s.logg.WithField(logCtx, "error", cause.Error()), "outbox event will not be retried")
	s.record(event, resultTerminal)
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return false, fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return true, nil
}

func buildMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) broker.Message {
	occurred := envelope.OccurredAt
	if occurred.IsZero() {
		occurred = event.CreatedAt
	}
	orderNumber := strconv.FormatInt(event.AggregateID, 10)
	return broker.Message{
		ID:         event.ID.String(),
		RoutingKey: routingKey(string(event.EventType)),
		Key:        orderNumber,
		Body:       event.Payload,
		Timestamp:  occurred,
		Headers: map[string]string{
			"event_id":       event.ID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"order_number":   orderNumber,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// routingKey maps order_status_changed to order.status_changed so consumers
// can bind per aggregate with order.* style patterns.
func routingKey(eventType string) string {
	return strings.Replace(eventType, "_", ".", 1)
}

func (s *Service) record(event models.OutboxEvent, result string) {
	if s.metrics != nil {
		s.metrics.IncOutboxRelay(string(event.EventType), result)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"order_number":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
