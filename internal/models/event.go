package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DetectionType classifies what the camera AI flagged.
type DetectionType string

const (
	DetectionFaceMatch          DetectionType = "face_match"
	DetectionSuspiciousBehavior DetectionType = "suspicious_behavior"
	DetectionEmotionAlert       DetectionType = "emotion_alert"
	DetectionLoitering          DetectionType = "loitering"
	DetectionIntrusion          DetectionType = "intrusion"
)

// Valid reports whether t is one of the known detection types.
func (t DetectionType) Valid() bool {
	switch t {
	case DetectionFaceMatch, DetectionSuspiciousBehavior, DetectionEmotionAlert,
		DetectionLoitering, DetectionIntrusion:
		return true
	}
	return false
}

// VerificationState tracks how far an event has progressed toward a
// tamper-evident ledger anchor.
type VerificationState string

const (
	VerificationUnverified    VerificationState = "unverified"
	VerificationChainAnchored VerificationState = "chain_anchored"
)

// DetectionEvent is one AI-flagged observation from one camera at one
// moment. EventID is immutable once assigned; LedgerTxID is set at most
// once, by the ledger dispatcher on confirmation.
type DetectionEvent struct {
	EventID           string            `json:"event_id" db:"event_id"`
	CameraID          string            `json:"camera_id" db:"camera_id"`
	DetectionType     DetectionType     `json:"detection_type" db:"detection_type"`
	Confidence        float32           `json:"confidence" db:"confidence"`
	Timestamp         time.Time         `json:"timestamp" db:"timestamp"`
	MatchedPersonID   *uuid.UUID        `json:"matched_person_id,omitempty" db:"matched_person_id"`
	MatchScore        float32           `json:"match_score,omitempty" db:"match_score"`
	PayloadKey        string            `json:"payload_key" db:"payload_key"`
	PayloadHash       string            `json:"payload_hash" db:"payload_hash"`
	VerificationState VerificationState `json:"verification_state" db:"verification_state"`
	LedgerTxID        string            `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	AnchoredAt        *time.Time        `json:"anchored_at,omitempty" db:"anchored_at"`
	Reviewed          bool              `json:"reviewed" db:"reviewed"`
	FalsePositive     bool              `json:"false_positive" db:"false_positive"`
	ReviewedBy        string            `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt        *time.Time        `json:"reviewed_at,omitempty" db:"reviewed_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

// FormatEventID builds the canonical event ID:
// evt_<YYYYMMDD>_<HHMMSS>_<camera>-<seq>. The sequence number is the
// camera lane's monotonic counter, so the ID is deterministic for a
// given (camera, capture time, sequence) and unique across cameras.
func FormatEventID(cameraID string, ts time.Time, seq uint64) string {
	return fmt.Sprintf("evt_%s_%s_%s-%d",
		ts.UTC().Format("20060102"), ts.UTC().Format("150405"), cameraID, seq)
}

// CameraIDFromEventID recovers the camera from an event ID. The camera
// is the segment after the time field, up to the final '-' separating
// it from the sequence number.
func CameraIDFromEventID(eventID string) string {
	parts := strings.SplitN(eventID, "_", 4)
	if len(parts) != 4 {
		return ""
	}
	tail := parts[3]
	if i := strings.LastIndexByte(tail, '-'); i > 0 {
		return tail[:i]
	}
	return ""
}

// SequenceFromEventID recovers the lane sequence number from an event
// ID, or 0 if the ID is malformed. Lane counters restart from the
// highest persisted sequence, so the first real sequence is always 1.
func SequenceFromEventID(eventID string) uint64 {
	parts := strings.SplitN(eventID, "_", 4)
	if len(parts) != 4 {
		return 0
	}
	tail := parts[3]
	i := strings.LastIndexByte(tail, '-')
	if i <= 0 {
		return 0
	}
	n, err := strconv.ParseUint(tail[i+1:], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// RawDetection is what a camera/AI producer submits, either over the
// RAW_DETECTIONS queue or the HTTP ingest endpoint. The payload has
// already been uploaded to the evidence store by the producer.
type RawDetection struct {
	CameraID      string        `json:"camera_id"`
	DetectionType DetectionType `json:"detection_type"`
	Confidence    float32       `json:"confidence"`
	Timestamp     time.Time     `json:"timestamp"`
	Descriptor    []float32     `json:"descriptor,omitempty"`
	PayloadKey    string        `json:"payload_key"`
	PayloadHash   string        `json:"payload_hash"`
}

// Key identifies a raw detection for deduplication: a producer retry
// after a network blip re-sends the same camera/timestamp/type tuple.
// Microsecond precision matches what the durable store retains, so a
// key rebuilt from a persisted event equals the original.
func (r RawDetection) Key() string {
	return fmt.Sprintf("%s|%d|%s", r.CameraID, r.Timestamp.UnixMicro(), r.DetectionType)
}
