package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatEventID(t *testing.T) {
	ts := time.Date(2026, 3, 14, 10, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		cameraID string
		seq      uint64
		want     string
	}{
		{"simple camera", "cam-01", 1, "evt_20260314_103045_cam-01-1"},
		{"large sequence", "cam-01", 100042, "evt_20260314_103045_cam-01-100042"},
		{"camera with underscore", "lobby_east", 7, "evt_20260314_103045_lobby_east-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatEventID(tt.cameraID, ts, tt.seq))
		})
	}
}

func TestFormatEventID_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	local := time.Date(2026, 3, 14, 13, 30, 45, 0, loc)
	utc := time.Date(2026, 3, 14, 10, 30, 45, 0, time.UTC)

	assert.Equal(t, FormatEventID("cam-01", utc, 1), FormatEventID("cam-01", local, 1))
}

func TestCameraIDFromEventID(t *testing.T) {
	tests := []struct {
		name    string
		eventID string
		want    string
	}{
		{"simple", "evt_20260314_103045_cam-01-1", "cam-01"},
		{"camera with underscore", "evt_20260314_103045_lobby_east-7", "lobby_east"},
		{"camera with dash", "evt_20260314_103045_floor-2-cam-9-12", "floor-2-cam-9"},
		{"malformed", "not-an-event-id", ""},
		{"missing sequence", "evt_20260314_103045_cam01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CameraIDFromEventID(tt.eventID))
		})
	}
}

func TestCameraIDFromEventID_RoundTrip(t *testing.T) {
	ts := time.Now()
	for _, cam := range []string{"cam-01", "lobby_east", "floor-2-cam-9"} {
		id := FormatEventID(cam, ts, 42)
		assert.Equal(t, cam, CameraIDFromEventID(id))
	}
}

func TestSequenceFromEventID(t *testing.T) {
	tests := []struct {
		name    string
		eventID string
		want    uint64
	}{
		{"simple", "evt_20260314_103045_cam-01-1", 1},
		{"large sequence", "evt_20260314_103045_cam-01-100042", 100042},
		{"camera with dash", "evt_20260314_103045_floor-2-cam-9-12", 12},
		{"malformed", "not-an-event-id", 0},
		{"missing sequence", "evt_20260314_103045_cam01", 0},
		{"non-numeric sequence", "evt_20260314_103045_cam-01-abc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SequenceFromEventID(tt.eventID))
		})
	}
}

func TestSequenceFromEventID_RoundTrip(t *testing.T) {
	ts := time.Now()
	for _, seq := range []uint64{1, 42, 999999} {
		id := FormatEventID("floor-2-cam-9", ts, seq)
		assert.Equal(t, seq, SequenceFromEventID(id))
	}
}

func TestRawDetection_KeyDistinguishesRetriesFromNewDetections(t *testing.T) {
	ts := time.Now()
	a := RawDetection{CameraID: "cam-01", DetectionType: DetectionIntrusion, Timestamp: ts}
	retry := a
	later := RawDetection{CameraID: "cam-01", DetectionType: DetectionIntrusion, Timestamp: ts.Add(time.Millisecond)}
	otherType := RawDetection{CameraID: "cam-01", DetectionType: DetectionLoitering, Timestamp: ts}

	assert.Equal(t, a.Key(), retry.Key())
	assert.NotEqual(t, a.Key(), later.Key())
	assert.NotEqual(t, a.Key(), otherType.Key())
}

func TestDetectionType_Valid(t *testing.T) {
	for _, dt := range []DetectionType{
		DetectionFaceMatch, DetectionSuspiciousBehavior, DetectionEmotionAlert,
		DetectionLoitering, DetectionIntrusion,
	} {
		assert.True(t, dt.Valid(), string(dt))
	}
	assert.False(t, DetectionType("").Valid())
	assert.False(t, DetectionType("ufo_sighting").Valid())
}
