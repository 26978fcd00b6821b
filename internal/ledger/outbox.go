package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

// Store is the durable home of outbox records and the only place
// allowed to set an event's ledger transaction id.
type Store interface {
	CreateOutboxRecord(ctx context.Context, eventID, payloadHash string) (*models.OutboxRecord, error)
	GetOutboxRecord(ctx context.Context, eventID string) (*models.OutboxRecord, error)
	DueOutboxRecords(ctx context.Context, now time.Time, limit int) ([]models.OutboxRecord, error)
	MarkOutboxSubmitting(ctx context.Context, eventID string, attempt int) error
	MarkOutboxConfirmed(ctx context.Context, eventID, txID string) error
	MarkOutboxFailed(ctx context.Context, eventID string, nextRetryAt time.Time, lastError string) error
	MarkOutboxAbandoned(ctx context.Context, eventID, lastError string) error
	MarkAnchored(ctx context.Context, eventID, txID string, at time.Time) error
	OutboxDepth(ctx context.Context) (int, error)
}

// Alerter receives abandonment notifications. Abandoning an event's
// evidentiary guarantee is reported, never silent.
type Alerter interface {
	PublishAlert(kind string, data interface{}) error
}

// AbandonedAlert is the payload published when anchoring is given up.
type AbandonedAlert struct {
	EventID      string `json:"event_id"`
	AttemptCount int    `json:"attempt_count"`
	LastError    string `json:"last_error"`
}

// Outbox owns ledger submission for the whole pipeline: Submit enqueues,
// the single dispatcher goroutine drains. No other writer touches
// outbox state.
type Outbox struct {
	store  Store
	writer Writer
	alert  Alerter
	cfg    config.LedgerConfig

	// onConfirmed is invoked after an event transitions to
	// chain_anchored, once per event.
	onConfirmed func(eventID, txID string)

	now  func() time.Time
	rand *rand.Rand
}

// New creates an Outbox. onConfirmed may be nil; alert may be nil in
// tests.
func New(store Store, writer Writer, alert Alerter, cfg config.LedgerConfig, onConfirmed func(eventID, txID string)) *Outbox {
	return &Outbox{
		store:       store,
		writer:      writer,
		alert:       alert,
		cfg:         cfg,
		onConfirmed: onConfirmed,
		now:         time.Now,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Submit enqueues an event for ledger anchoring. Idempotent: calling it
// again for an event with a live record returns that record unchanged.
func (o *Outbox) Submit(ctx context.Context, eventID, payloadHash string) (*models.OutboxRecord, error) {
	rec, err := o.store.CreateOutboxRecord(ctx, eventID, payloadHash)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", eventID, err)
	}
	return rec, nil
}

// Status returns the outbox record for an event, or nil if none exists.
func (o *Outbox) Status(ctx context.Context, eventID string) (*models.OutboxRecord, error) {
	return o.store.GetOutboxRecord(ctx, eventID)
}

// Run drives the dispatcher until ctx is cancelled. Ingestion never
// waits on this loop.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.DispatchEvery)
	defer ticker.Stop()

	slog.Info("ledger dispatcher started",
		"interval", o.cfg.DispatchEvery.String(),
		"max_attempts", o.cfg.MaxAttempts,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("ledger dispatcher stopped")
			return
		case <-ticker.C:
			if err := o.sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("outbox sweep", "error", err)
			}
			if depth, err := o.store.OutboxDepth(ctx); err == nil {
				observability.OutboxDepth.Set(float64(depth))
			}
		}
	}
}

// sweep dispatches every due record once.
func (o *Outbox) sweep(ctx context.Context) error {
	recs, err := o.store.DueOutboxRecords(ctx, o.now(), o.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("load due records: %w", err)
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.dispatch(ctx, rec)
	}
	return nil
}

// dispatch runs one record through pending/failed -> submitting ->
// confirmed | failed | abandoned.
func (o *Outbox) dispatch(ctx context.Context, rec models.OutboxRecord) {
	attempt := rec.AttemptCount + 1
	if err := o.store.MarkOutboxSubmitting(ctx, rec.EventID, attempt); err != nil {
		slog.Error("mark submitting", "event_id", rec.EventID, "error", err)
		return
	}

	txID, err := o.writer.Write(ctx, rec.EventID, rec.PayloadHash)
	if err == nil {
		o.confirm(ctx, rec, txID)
		return
	}

	if IsRejected(err) {
		// The ledger refused the write as invalid. Retrying cannot
		// succeed, so the remaining attempts are not spent.
		observability.LedgerSubmissions.WithLabelValues("rejected").Inc()
		o.abandon(ctx, rec.EventID, attempt, err)
		return
	}

	observability.LedgerSubmissions.WithLabelValues("transient_error").Inc()
	if attempt >= o.cfg.MaxAttempts {
		o.abandon(ctx, rec.EventID, attempt, err)
		return
	}

	next := o.now().Add(o.backoff(attempt))
	if err := o.store.MarkOutboxFailed(ctx, rec.EventID, next, err.Error()); err != nil {
		slog.Error("mark failed", "event_id", rec.EventID, "error", err)
		return
	}
	slog.Warn("ledger write failed, will retry",
		"event_id", rec.EventID,
		"attempt", attempt,
		"next_retry_at", next.Format(time.RFC3339),
		"error", err,
	)
}

func (o *Outbox) confirm(ctx context.Context, rec models.OutboxRecord, txID string) {
	if err := o.store.MarkOutboxConfirmed(ctx, rec.EventID, txID); err != nil {
		slog.Error("mark confirmed", "event_id", rec.EventID, "error", err)
		return
	}
	now := o.now()
	if err := o.store.MarkAnchored(ctx, rec.EventID, txID, now); err != nil {
		slog.Error("mark anchored", "event_id", rec.EventID, "error", err)
		return
	}

	observability.LedgerSubmissions.WithLabelValues("confirmed").Inc()
	observability.LedgerConfirmLatency.Observe(now.Sub(rec.CreatedAt).Seconds())
	slog.Info("evidence anchored", "event_id", rec.EventID, "tx_id", txID)

	if o.onConfirmed != nil {
		o.onConfirmed(rec.EventID, txID)
	}
}

func (o *Outbox) abandon(ctx context.Context, eventID string, attempt int, cause error) {
	if err := o.store.MarkOutboxAbandoned(ctx, eventID, cause.Error()); err != nil {
		slog.Error("mark abandoned", "event_id", eventID, "error", err)
		return
	}

	observability.OutboxAbandoned.Inc()
	slog.Error("ledger anchoring abandoned",
		"event_id", eventID,
		"attempts", attempt,
		"error", cause,
	)

	if o.alert != nil {
		if err := o.alert.PublishAlert("ledger_abandoned", AbandonedAlert{
			EventID:      eventID,
			AttemptCount: attempt,
			LastError:    cause.Error(),
		}); err != nil {
			slog.Error("publish abandonment alert", "event_id", eventID, "error", err)
		}
	}
}

// backoff computes the delay before the next attempt: exponential from
// the configured base, capped, with up to 50% added jitter to avoid
// thundering-herd retries after a gateway outage.
func (o *Outbox) backoff(attempt int) time.Duration {
	d := o.cfg.RetryBase
	for i := 1; i < attempt && d < o.cfg.RetryCap; i++ {
		d *= 2
	}
	if d > o.cfg.RetryCap {
		d = o.cfg.RetryCap
	}
	jitter := time.Duration(o.rand.Int63n(int64(d)/2 + 1))
	d += jitter
	if d > o.cfg.RetryCap {
		d = o.cfg.RetryCap
	}
	return d
}
