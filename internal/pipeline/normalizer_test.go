package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

type fakeRegistry struct {
	cameras map[string]*models.Camera
	err     error
	calls   int
}

func (f *fakeRegistry) GetCamera(_ context.Context, id string) (*models.Camera, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cameras[id], nil
}

func testNormalizer(reg *fakeRegistry, now time.Time) *Normalizer {
	n := NewNormalizer(reg, config.Default().Pipeline)
	n.now = func() time.Time { return now }
	return n
}

func validRaw(now time.Time) models.RawDetection {
	return models.RawDetection{
		CameraID:      "cam-01",
		DetectionType: models.DetectionFaceMatch,
		Confidence:    0.9,
		Timestamp:     now.Add(-time.Second),
		PayloadKey:    "evidence/cam-01/frame.jpg",
		PayloadHash:   "abc123",
	}
}

func TestNormalizer_Validate(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	registry := &fakeRegistry{cameras: map[string]*models.Camera{
		"cam-01":   {ID: "cam-01", Active: true},
		"cam-dark": {ID: "cam-dark", Active: false},
	}}

	tests := []struct {
		name       string
		mutate     func(*models.RawDetection)
		wantReason string
	}{
		{
			name:   "valid detection",
			mutate: func(r *models.RawDetection) {},
		},
		{
			name:       "unknown detection type",
			mutate:     func(r *models.RawDetection) { r.DetectionType = "ufo_sighting" },
			wantReason: ReasonBadType,
		},
		{
			name:       "confidence above one",
			mutate:     func(r *models.RawDetection) { r.Confidence = 1.5 },
			wantReason: ReasonOutOfRange,
		},
		{
			name:       "negative confidence",
			mutate:     func(r *models.RawDetection) { r.Confidence = -0.1 },
			wantReason: ReasonOutOfRange,
		},
		{
			name:       "empty camera",
			mutate:     func(r *models.RawDetection) { r.CameraID = "" },
			wantReason: ReasonUnknownCamera,
		},
		{
			name:       "timestamp beyond clock skew",
			mutate:     func(r *models.RawDetection) { r.Timestamp = now.Add(10 * time.Second) },
			wantReason: ReasonFuture,
		},
		{
			name:   "timestamp within clock skew tolerance",
			mutate: func(r *models.RawDetection) { r.Timestamp = now.Add(3 * time.Second) },
		},
		{
			name:       "stale detection",
			mutate:     func(r *models.RawDetection) { r.Timestamp = now.Add(-2 * time.Minute) },
			wantReason: ReasonStale,
		},
		{
			name:       "unregistered camera",
			mutate:     func(r *models.RawDetection) { r.CameraID = "cam-ghost" },
			wantReason: ReasonUnknownCamera,
		},
		{
			name:       "inactive camera",
			mutate:     func(r *models.RawDetection) { r.CameraID = "cam-dark" },
			wantReason: ReasonUnknownCamera,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := testNormalizer(registry, now)
			raw := validRaw(now)
			tt.mutate(&raw)

			err := n.Validate(context.Background(), raw)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantReason, ve.Reason)
		})
	}
}

func TestNormalizer_RegistryErrorIsNotValidation(t *testing.T) {
	now := time.Now()
	n := testNormalizer(&fakeRegistry{err: errors.New("registry down")}, now)

	err := n.Validate(context.Background(), validRaw(now))
	require.Error(t, err)
	var ve *ValidationError
	assert.False(t, errors.As(err, &ve))
}

func TestNormalizer_CachesCameraLookups(t *testing.T) {
	now := time.Now()
	registry := &fakeRegistry{cameras: map[string]*models.Camera{
		"cam-01": {ID: "cam-01", Active: true},
	}}
	n := testNormalizer(registry, now)

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Validate(context.Background(), validRaw(now)))
	}
	assert.Equal(t, 1, registry.calls)
}

func TestNormalizer_NormalizeDeterministicID(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 45, 0, time.UTC)
	n := testNormalizer(&fakeRegistry{}, now)
	raw := validRaw(now)
	raw.Timestamp = now

	ev1 := n.Normalize(raw, 7)
	ev2 := n.Normalize(raw, 7)

	assert.Equal(t, "evt_20260314_103045_cam-01-7", ev1.EventID)
	assert.Equal(t, ev1.EventID, ev2.EventID)
	assert.Equal(t, models.VerificationUnverified, ev1.VerificationState)
	assert.Equal(t, raw.PayloadHash, ev1.PayloadHash)
}
