package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

// CameraRegistry is the external camera registry collaborator.
type CameraRegistry interface {
	GetCamera(ctx context.Context, id string) (*models.Camera, error)
}

// Normalizer validates raw detections and canonicalizes them into
// immutable DetectionEvents. Pure apart from the registry lookup; the
// event ID sequence is owned by the caller's camera lane.
type Normalizer struct {
	cameras CameraRegistry
	cfg     config.PipelineConfig
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cameraCacheEntry
}

type cameraCacheEntry struct {
	active  bool
	expires time.Time
}

const cameraCacheTTL = 10 * time.Second

func NewNormalizer(cameras CameraRegistry, cfg config.PipelineConfig) *Normalizer {
	return &Normalizer{
		cameras: cameras,
		cfg:     cfg,
		now:     time.Now,
		cache:   make(map[string]cameraCacheEntry),
	}
}

// Validate checks a raw detection without assigning identity. It is
// called synchronously on the ingest path so producers learn about
// rejects immediately.
func (n *Normalizer) Validate(ctx context.Context, raw models.RawDetection) error {
	if !raw.DetectionType.Valid() {
		return &ValidationError{Reason: ReasonBadType, Detail: string(raw.DetectionType)}
	}
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return &ValidationError{Reason: ReasonOutOfRange, Detail: fmt.Sprintf("confidence %.3f", raw.Confidence)}
	}
	if raw.CameraID == "" {
		return &ValidationError{Reason: ReasonUnknownCamera}
	}

	now := n.now()
	if raw.Timestamp.After(now.Add(n.cfg.MaxClockSkew)) {
		return &ValidationError{Reason: ReasonFuture, Detail: raw.Timestamp.Format(time.RFC3339)}
	}
	if raw.Timestamp.Before(now.Add(-n.cfg.StalenessWindow)) {
		return &ValidationError{Reason: ReasonStale, Detail: raw.Timestamp.Format(time.RFC3339)}
	}

	active, err := n.cameraActive(ctx, raw.CameraID)
	if err != nil {
		return fmt.Errorf("camera registry: %w", err)
	}
	if !active {
		return &ValidationError{Reason: ReasonUnknownCamera, Detail: raw.CameraID}
	}
	return nil
}

// Normalize builds the immutable event for an already-validated raw
// detection. seq is the camera lane's monotonic counter, making the
// event ID deterministic for a given (camera, timestamp, sequence).
func (n *Normalizer) Normalize(raw models.RawDetection, seq uint64) *models.DetectionEvent {
	return &models.DetectionEvent{
		EventID:           models.FormatEventID(raw.CameraID, raw.Timestamp, seq),
		CameraID:          raw.CameraID,
		DetectionType:     raw.DetectionType,
		Confidence:        raw.Confidence,
		Timestamp:         raw.Timestamp,
		PayloadKey:        raw.PayloadKey,
		PayloadHash:       raw.PayloadHash,
		VerificationState: models.VerificationUnverified,
	}
}

// cameraActive memoizes registry lookups briefly; the registry is on the
// hot ingest path.
func (n *Normalizer) cameraActive(ctx context.Context, id string) (bool, error) {
	n.mu.Lock()
	entry, ok := n.cache[id]
	n.mu.Unlock()
	if ok && n.now().Before(entry.expires) {
		return entry.active, nil
	}

	cam, err := n.cameras.GetCamera(ctx, id)
	if err != nil {
		return false, err
	}
	active := cam != nil && cam.Active

	n.mu.Lock()
	n.cache[id] = cameraCacheEntry{active: active, expires: n.now().Add(cameraCacheTTL)}
	n.mu.Unlock()
	return active, nil
}
