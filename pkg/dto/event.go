package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/models"
)

// IngestRequest is the HTTP ingest form of a raw detection. Payload is
// optional base64-encoded evidence bytes; when present the server
// stores it and derives the payload key/hash, otherwise PayloadKey and
// PayloadHash must reference an already-uploaded object.
type IngestRequest struct {
	CameraID      string    `json:"camera_id" binding:"required"`
	DetectionType string    `json:"detection_type" binding:"required"`
	Confidence    float32   `json:"confidence"`
	Timestamp     string    `json:"timestamp" binding:"required"`
	Descriptor    []float32 `json:"descriptor,omitempty"`
	Payload       string    `json:"payload,omitempty"`
	PayloadKey    string    `json:"payload_key,omitempty"`
	PayloadHash   string    `json:"payload_hash,omitempty"`
}

type IngestResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type EventResponse struct {
	EventID           string     `json:"event_id"`
	CameraID          string     `json:"camera_id"`
	DetectionType     string     `json:"detection_type"`
	Confidence        float32    `json:"confidence"`
	Timestamp         string     `json:"timestamp"`
	MatchedPersonID   *uuid.UUID `json:"matched_person_id,omitempty"`
	MatchScore        float32    `json:"match_score,omitempty"`
	VerificationState string     `json:"verification_state"`
	LedgerTxID        string     `json:"ledger_tx_id,omitempty"`
	AnchoredAt        string     `json:"anchored_at,omitempty"`
	Reviewed          bool       `json:"reviewed"`
	FalsePositive     bool       `json:"false_positive"`
	SnapshotURL       string     `json:"snapshot_url,omitempty"`
	CreatedAt         string     `json:"created_at"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int             `json:"total"`
}

type ReviewRequest struct {
	Reviewer      string `json:"reviewer" binding:"required"`
	FalsePositive bool   `json:"false_positive"`
}

type OutboxStatusResponse struct {
	EventID      string `json:"event_id"`
	State        string `json:"state"`
	AttemptCount int    `json:"attempt_count"`
	NextRetryAt  string `json:"next_retry_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
	LedgerTxID   string `json:"ledger_tx_id,omitempty"`
}

type VerifyResponse struct {
	EventID     string `json:"event_id"`
	Anchored    bool   `json:"anchored"`
	LedgerTxID  string `json:"ledger_tx_id,omitempty"`
	StoredHash  string `json:"stored_hash"`
	CurrentHash string `json:"current_hash"`
	Intact      bool   `json:"intact"`
}

// FromEvent maps a detection event onto its API shape.
func FromEvent(ev *models.DetectionEvent) EventResponse {
	r := EventResponse{
		EventID:           ev.EventID,
		CameraID:          ev.CameraID,
		DetectionType:     string(ev.DetectionType),
		Confidence:        ev.Confidence,
		Timestamp:         ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		MatchedPersonID:   ev.MatchedPersonID,
		MatchScore:        ev.MatchScore,
		VerificationState: string(ev.VerificationState),
		LedgerTxID:        ev.LedgerTxID,
		Reviewed:          ev.Reviewed,
		FalsePositive:     ev.FalsePositive,
		CreatedAt:         ev.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if ev.AnchoredAt != nil {
		r.AnchoredAt = ev.AnchoredAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	if ev.PayloadKey != "" {
		r.SnapshotURL = "/v1/events/" + ev.EventID + "/snapshot"
	}
	return r
}
