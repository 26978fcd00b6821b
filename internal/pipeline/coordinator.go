package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/bus"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

// EventStore is the external durable store for finalized events.
// RecentEvents backs lane recovery: on creation a lane reloads the
// camera's events inside the staleness window so sequence numbers and
// deduplication survive restarts.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *models.DetectionEvent) error
	RecentEvents(ctx context.Context, cameraID string, since time.Time, limit int) ([]models.DetectionEvent, error)
}

// WatchlistUpdater records sightings of matched persons.
type WatchlistUpdater interface {
	UpdateLastSeen(ctx context.Context, personID uuid.UUID, cameraID string, at time.Time) error
}

// Anchorer hands events to the evidence ledger's outbox.
type Anchorer interface {
	Submit(ctx context.Context, eventID, payloadHash string) (*models.OutboxRecord, error)
}

// Publisher fans finalized events out to subscribers.
type Publisher interface {
	Publish(msg bus.Message)
}

// Coordinator orchestrates the pipeline per event: validate -> assign
// identity -> match -> persist -> hand to ledger outbox -> publish.
// One sequential lane per camera preserves per-camera causal order;
// lanes run fully parallel across cameras.
type Coordinator struct {
	normalizer *Normalizer
	matcher    *Matcher
	store      EventStore
	watchlist  WatchlistUpdater
	outbox     Anchorer
	bus        Publisher
	cfg        config.PipelineConfig

	baseCtx context.Context

	mu        sync.Mutex
	lanes     map[string]*lane
	accepting bool
	wg        sync.WaitGroup
}

// lane is one camera's sequential processing queue. The sequence
// counter and dedupe cache are touched only by the lane goroutine, so
// they need no locking.
type lane struct {
	cameraID string
	ch       chan models.RawDetection
	draining bool

	seq         uint64
	recent      map[string]string
	recentOrder []string
}

func NewCoordinator(ctx context.Context, normalizer *Normalizer, matcher *Matcher,
	store EventStore, watchlist WatchlistUpdater, outbox Anchorer, publisher Publisher,
	cfg config.PipelineConfig) *Coordinator {
	return &Coordinator{
		normalizer: normalizer,
		matcher:    matcher,
		store:      store,
		watchlist:  watchlist,
		outbox:     outbox,
		bus:        publisher,
		cfg:        cfg,
		baseCtx:    ctx,
		lanes:      make(map[string]*lane),
		accepting:  true,
	}
}

// Ingest accepts one raw detection from a producer. Validation errors
// are returned synchronously; ErrOverloaded tells the producer to slow
// down and retry. Once accepted, the detection is processed by the
// camera's lane and any downstream failure is handled there — it never
// propagates back to the producer.
func (c *Coordinator) Ingest(ctx context.Context, raw models.RawDetection) error {
	if err := c.normalizer.Validate(ctx, raw); err != nil {
		var reason string
		if ve, ok := err.(*ValidationError); ok {
			reason = ve.Reason
		} else {
			reason = "registry_error"
		}
		observability.EventsRejected.WithLabelValues(reason).Inc()
		return err
	}

	c.mu.Lock()
	if !c.accepting {
		c.mu.Unlock()
		return ErrShutdown
	}
	ln, ok := c.lanes[raw.CameraID]
	if ok && ln.draining {
		c.mu.Unlock()
		return ErrCameraDraining
	}
	if !ok {
		ln = &lane{
			cameraID: raw.CameraID,
			ch:       make(chan models.RawDetection, c.cfg.LaneDepth),
			recent:   make(map[string]string),
		}
		c.lanes[raw.CameraID] = ln
		c.wg.Add(1)
		go c.runLane(ln)
	}

	// Bounded lane: a full queue pushes back on this camera's producer
	// without buffering unboundedly or touching other cameras.
	select {
	case ln.ch <- raw:
		c.mu.Unlock()
		observability.LaneDepth.WithLabelValues(raw.CameraID).Set(float64(len(ln.ch)))
		return nil
	default:
		c.mu.Unlock()
		observability.EventsRejected.WithLabelValues("overloaded").Inc()
		return ErrOverloaded
	}
}

// DeactivateCamera drains a camera's lane: in-flight detections finish,
// new ones are rejected. Safe to call for a camera with no lane.
func (c *Coordinator) DeactivateCamera(cameraID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ln, ok := c.lanes[cameraID]
	if !ok || ln.draining {
		return
	}
	ln.draining = true
	close(ln.ch)
}

// Close stops intake, drains every lane, and waits for in-flight events
// to finish their durable writes.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if !c.accepting {
		c.mu.Unlock()
		c.wg.Wait()
		return
	}
	c.accepting = false
	for _, ln := range c.lanes {
		if !ln.draining {
			ln.draining = true
			close(ln.ch)
		}
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Coordinator) runLane(ln *lane) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.lanes, ln.cameraID)
		c.mu.Unlock()
		observability.LaneDepth.DeleteLabelValues(ln.cameraID)
	}()

	c.seedLane(ln)

	for raw := range ln.ch {
		c.process(ln, raw)
		observability.LaneDepth.WithLabelValues(ln.cameraID).Set(float64(len(ln.ch)))
	}
}

// seedLane reloads lane state from the durable store: the sequence
// counter resumes above the highest persisted sequence and the dedupe
// cache relearns the camera's events inside the staleness window, so a
// producer retry after a restart (or camera reactivation) collapses
// onto the persisted event instead of minting a new or colliding ID.
// Runs on the lane goroutine before the first detection is processed.
func (c *Coordinator) seedLane(ln *lane) {
	ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.PersistTimeout)
	defer cancel()

	since := time.Now().Add(-c.cfg.StalenessWindow)
	events, err := c.store.RecentEvents(ctx, ln.cameraID, since, c.cfg.DedupeCacheSize)
	if err != nil {
		// Degraded: duplicates within the window may get fresh IDs.
		slog.Warn("seed camera lane", "camera_id", ln.cameraID, "error", err)
		return
	}

	for _, ev := range events {
		if seq := models.SequenceFromEventID(ev.EventID); seq > ln.seq {
			ln.seq = seq
		}
		key := models.RawDetection{
			CameraID:      ev.CameraID,
			DetectionType: ev.DetectionType,
			Timestamp:     ev.Timestamp,
		}.Key()
		ln.remember(key, ev.EventID, c.cfg.DedupeCacheSize)
	}
	if len(events) > 0 {
		slog.Debug("camera lane seeded", "camera_id", ln.cameraID, "events", len(events), "seq", ln.seq)
	}
}

// process runs one detection through the pipeline on its lane. The lane
// keeps going regardless of per-event failures: no event may block
// another.
func (c *Coordinator) process(ln *lane, raw models.RawDetection) {
	// Re-delivery of the same raw detection (producer retry) collapses
	// onto the already-assigned event.
	key := raw.Key()
	if _, seen := ln.recent[key]; seen {
		observability.EventsDeduplicated.WithLabelValues(ln.cameraID).Inc()
		return
	}

	ln.seq++
	ev := c.normalizer.Normalize(raw, ln.seq)
	ln.remember(key, ev.EventID, c.cfg.DedupeCacheSize)

	ctx := c.baseCtx

	match, err := c.matcher.Match(ctx, raw.Descriptor)
	if err != nil {
		// Matching is best-effort: the event is still evidentiary
		// without a watchlist correlation.
		slog.Error("watchlist match", "event_id", ev.EventID, "error", err)
	}
	if match != nil {
		pid := match.PersonID
		ev.MatchedPersonID = &pid
		ev.MatchScore = match.Score
		observability.WatchlistMatches.WithLabelValues(string(match.RiskLevel)).Inc()
	}

	if !c.persist(ctx, ev) {
		return
	}

	if match != nil && c.watchlist != nil {
		if err := c.watchlist.UpdateLastSeen(ctx, match.PersonID, ev.CameraID, ev.Timestamp); err != nil {
			slog.Error("update last seen", "event_id", ev.EventID, "error", err)
		}
	}

	if _, err := c.outbox.Submit(ctx, ev.EventID, ev.PayloadHash); err != nil {
		// The event is durable and visible; anchoring will be retried
		// by the dispatcher once the record exists. Losing the record
		// entirely is logged loudly.
		slog.Error("outbox submit", "event_id", ev.EventID, "error", err)
	}

	// Publish immediately after durable persistence: operators need
	// sub-second visibility while ledger anchoring proceeds in the
	// background.
	msg := bus.Message{Kind: bus.KindEvent, Event: ev}
	if match != nil {
		msg.MatchedRisk = match.RiskLevel
	}
	c.bus.Publish(msg)
	if match != nil && match.RiskLevel.Rank() >= models.RiskHigh.Rank() {
		c.bus.Publish(bus.Message{Kind: bus.KindAlert, Event: ev,
			MatchedRisk: match.RiskLevel,
			Alert:       "watchlist match: " + string(match.RiskLevel)})
	}

	observability.EventsIngested.WithLabelValues(ev.CameraID, string(ev.DetectionType)).Inc()
	slog.Debug("event processed",
		"event_id", ev.EventID,
		"camera_id", ev.CameraID,
		"type", ev.DetectionType,
		"matched", match != nil,
	)
}

// persist writes the event to the durable store with a bounded timeout,
// retrying briefly on transient failure.
func (c *Coordinator) persist(ctx context.Context, ev *models.DetectionEvent) bool {
	const attempts = 3
	for i := 1; i <= attempts; i++ {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.PersistTimeout)
		err := c.store.CreateEvent(opCtx, ev)
		cancel()
		if err == nil {
			return true
		}
		slog.Warn("persist event", "event_id", ev.EventID, "attempt", i, "error", err)
		if i < attempts {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(time.Duration(i) * 500 * time.Millisecond):
			}
		}
	}
	slog.Error("persist event failed, dropping", "event_id", ev.EventID)
	observability.EventsRejected.WithLabelValues("storage_error").Inc()
	return false
}

// remember caps the dedupe cache at size entries, evicting oldest. The
// cache only needs to span the staleness window: anything older is
// rejected as stale before it reaches the lane.
func (ln *lane) remember(key, eventID string, size int) {
	ln.recent[key] = eventID
	ln.recentOrder = append(ln.recentOrder, key)
	for len(ln.recentOrder) > size {
		delete(ln.recent, ln.recentOrder[0])
		ln.recentOrder = ln.recentOrder[1:]
	}
}
