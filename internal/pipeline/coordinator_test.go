package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/sentinel/internal/bus"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

type memEventStore struct {
	mu     sync.Mutex
	events []*models.DetectionEvent
	block  chan struct{}
}

func (s *memEventStore) CreateEvent(ctx context.Context, ev *models.DetectionEvent) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memEventStore) RecentEvents(_ context.Context, cameraID string, since time.Time, limit int) ([]models.DetectionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DetectionEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := s.events[i]
		if ev.CameraID == cameraID && !ev.Timestamp.Before(since) {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (s *memEventStore) all() []*models.DetectionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.DetectionEvent(nil), s.events...)
}

type fakeAnchorer struct {
	mu       sync.Mutex
	eventIDs []string
	err      error
}

func (a *fakeAnchorer) Submit(_ context.Context, eventID, _ string) (*models.OutboxRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.eventIDs = append(a.eventIDs, eventID)
	return &models.OutboxRecord{EventID: eventID, State: models.OutboxPending}, a.err
}

func (a *fakeAnchorer) submitted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.eventIDs...)
}

type memPublisher struct {
	mu   sync.Mutex
	msgs []bus.Message
}

func (p *memPublisher) Publish(msg bus.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *memPublisher) published() []bus.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bus.Message(nil), p.msgs...)
}

type fakeWatchlist struct {
	mu    sync.Mutex
	calls int
}

func (w *fakeWatchlist) UpdateLastSeen(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return nil
}

type coordFixture struct {
	coordinator *Coordinator
	store       *memEventStore
	anchorer    *fakeAnchorer
	publisher   *memPublisher
	watchlist   *fakeWatchlist
	searcher    *fakeSearcher
}

func newCoordFixture(t *testing.T, mutate func(*config.PipelineConfig)) *coordFixture {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg.Pipeline)
	}

	registry := &fakeRegistry{cameras: map[string]*models.Camera{
		"cam-01": {ID: "cam-01", Active: true},
		"cam-02": {ID: "cam-02", Active: true},
	}}

	f := &coordFixture{
		store:     &memEventStore{},
		anchorer:  &fakeAnchorer{},
		publisher: &memPublisher{},
		watchlist: &fakeWatchlist{},
		searcher:  &fakeSearcher{},
	}
	f.coordinator = NewCoordinator(context.Background(),
		NewNormalizer(registry, cfg.Pipeline),
		NewMatcher(f.searcher, cfg.Matcher),
		f.store, f.watchlist, f.anchorer, f.publisher, cfg.Pipeline)
	return f
}

func detection(cameraID string, at time.Time) models.RawDetection {
	return models.RawDetection{
		CameraID:      cameraID,
		DetectionType: models.DetectionIntrusion,
		Confidence:    0.9,
		Timestamp:     at,
		PayloadKey:    "evidence/" + cameraID + "/frame.jpg",
		PayloadHash:   "deadbeef",
	}
}

func TestCoordinator_ProcessesDetectionEndToEnd(t *testing.T) {
	f := newCoordFixture(t, nil)

	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-01", time.Now())))
	f.coordinator.Close()

	events := f.store.all()
	require.Len(t, events, 1)
	assert.Equal(t, "cam-01", events[0].CameraID)
	assert.Equal(t, models.VerificationUnverified, events[0].VerificationState)

	assert.Equal(t, []string{events[0].EventID}, f.anchorer.submitted())

	msgs := f.publisher.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, bus.KindEvent, msgs[0].Kind)
	assert.Equal(t, events[0].EventID, msgs[0].Event.EventID)
}

func TestCoordinator_DuplicateDeliveryCollapses(t *testing.T) {
	f := newCoordFixture(t, nil)
	raw := detection("cam-01", time.Now())

	require.NoError(t, f.coordinator.Ingest(context.Background(), raw))
	require.NoError(t, f.coordinator.Ingest(context.Background(), raw))
	f.coordinator.Close()

	assert.Len(t, f.store.all(), 1, "retry of the same raw detection must not create a second event")
	assert.Len(t, f.anchorer.submitted(), 1)
}

func TestCoordinator_PerCameraOrderPreserved(t *testing.T) {
	f := newCoordFixture(t, nil)
	base := time.Now().Add(-10 * time.Second)

	const n = 20
	for i := 0; i < n; i++ {
		raw := detection("cam-01", base.Add(time.Duration(i)*100*time.Millisecond))
		require.NoError(t, f.coordinator.Ingest(context.Background(), raw))
	}
	f.coordinator.Close()

	events := f.store.all()
	require.Len(t, events, n)
	for i := 1; i < n; i++ {
		assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp),
			"events must be persisted in capture order")
	}
}

func TestCoordinator_IndependentCamerasBothProcessed(t *testing.T) {
	f := newCoordFixture(t, nil)
	now := time.Now()

	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-01", now)))
	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-02", now)))
	f.coordinator.Close()

	events := f.store.all()
	require.Len(t, events, 2)
	cameras := map[string]bool{}
	for _, ev := range events {
		cameras[ev.CameraID] = true
	}
	assert.True(t, cameras["cam-01"] && cameras["cam-02"])
}

func TestCoordinator_FullLaneRejectsWithOverloaded(t *testing.T) {
	f := newCoordFixture(t, func(p *config.PipelineConfig) {
		p.LaneDepth = 1
	})
	f.store.block = make(chan struct{})
	now := time.Now()

	// The lane goroutine blocks on the store, so with depth 1 at most
	// two detections are accepted before backpressure kicks in.
	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-01", now)))

	var overloaded bool
	for i := 0; i < 10; i++ {
		err := f.coordinator.Ingest(context.Background(), detection("cam-01", now.Add(time.Duration(i+1)*time.Millisecond)))
		if errors.Is(err, ErrOverloaded) {
			overloaded = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, overloaded, "a saturated lane must push back on the producer")

	close(f.store.block)
	f.coordinator.Close()
}

func TestCoordinator_DownstreamAnchorFailureDoesNotDropEvent(t *testing.T) {
	f := newCoordFixture(t, nil)
	f.anchorer.err = errors.New("outbox unavailable")

	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-01", time.Now())))
	f.coordinator.Close()

	assert.Len(t, f.store.all(), 1, "event must stay durable when anchoring enqueue fails")
	msgs := f.publisher.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, bus.KindEvent, msgs[0].Kind)
}

func TestCoordinator_HighRiskMatchPublishesAlert(t *testing.T) {
	f := newCoordFixture(t, nil)
	personID := uuid.New()
	f.searcher.candidates = []models.Candidate{
		{PersonID: personID, Name: "subject", RiskLevel: models.RiskCritical, Score: 0.95},
	}

	raw := detection("cam-01", time.Now())
	raw.Descriptor = []float32{0.5, 0.5}
	require.NoError(t, f.coordinator.Ingest(context.Background(), raw))
	f.coordinator.Close()

	events := f.store.all()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].MatchedPersonID)
	assert.Equal(t, personID, *events[0].MatchedPersonID)
	assert.Equal(t, 1, f.watchlist.calls)

	var kinds []bus.MessageKind
	for _, msg := range f.publisher.published() {
		kinds = append(kinds, msg.Kind)
	}
	assert.Equal(t, []bus.MessageKind{bus.KindEvent, bus.KindAlert}, kinds)
}

func TestCoordinator_LaneStateSurvivesRestart(t *testing.T) {
	f := newCoordFixture(t, nil)
	raw := detection("cam-01", time.Now())

	require.NoError(t, f.coordinator.Ingest(context.Background(), raw))
	f.coordinator.Close()

	events := f.store.all()
	require.Len(t, events, 1)
	firstID := events[0].EventID

	cfg := config.Default()
	registry := &fakeRegistry{cameras: map[string]*models.Camera{
		"cam-01": {ID: "cam-01", Active: true},
	}}
	restarted := NewCoordinator(context.Background(),
		NewNormalizer(registry, cfg.Pipeline),
		NewMatcher(&fakeSearcher{}, cfg.Matcher),
		f.store, f.watchlist, f.anchorer, f.publisher, cfg.Pipeline)

	// A producer retry of the pre-restart detection collapses onto the
	// persisted event instead of minting a fresh ID against it.
	require.NoError(t, restarted.Ingest(context.Background(), raw))

	// A genuinely new detection resumes the camera's sequence above the
	// persisted one, so no ID is ever reissued.
	require.NoError(t, restarted.Ingest(context.Background(), detection("cam-01", raw.Timestamp.Add(-2*time.Second))))
	restarted.Close()

	events = f.store.all()
	require.Len(t, events, 2)
	assert.Equal(t, firstID, events[0].EventID)
	assert.NotEqual(t, firstID, events[1].EventID)
	assert.Greater(t, models.SequenceFromEventID(events[1].EventID),
		models.SequenceFromEventID(firstID))
}

func TestCoordinator_RejectsAfterClose(t *testing.T) {
	f := newCoordFixture(t, nil)
	f.coordinator.Close()

	err := f.coordinator.Ingest(context.Background(), detection("cam-01", time.Now()))
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestCoordinator_DeactivatedCameraDrains(t *testing.T) {
	f := newCoordFixture(t, nil)
	now := time.Now()

	require.NoError(t, f.coordinator.Ingest(context.Background(), detection("cam-01", now)))
	f.coordinator.DeactivateCamera("cam-01")
	f.coordinator.Close()

	assert.Len(t, f.store.all(), 1, "accepted detection must finish during drain")
}
