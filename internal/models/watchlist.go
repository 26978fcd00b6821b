package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RiskLevel orders watchlist subjects by operational priority.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank returns a comparable ordering: higher means higher risk.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// WatchlistPerson is a person of interest. Embeddings live in their own
// table and are referenced by person ID; events reference persons by ID
// only, never by value.
type WatchlistPerson struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Category         string          `json:"category" db:"category"`
	RiskLevel        RiskLevel       `json:"risk_level" db:"risk_level"`
	AuthorizationRef string          `json:"authorization_ref,omitempty" db:"authorization_ref"`
	EnrolledBy       string          `json:"enrolled_by" db:"enrolled_by"`
	Active           bool            `json:"active" db:"active"`
	LastSeenAt       *time.Time      `json:"last_seen_at,omitempty" db:"last_seen_at"`
	LastSeenCamera   string          `json:"last_seen_camera,omitempty" db:"last_seen_camera"`
	TotalDetections  int             `json:"total_detections" db:"total_detections"`
	Metadata         json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Candidate is one ranked result from the similarity search.
type Candidate struct {
	PersonID  uuid.UUID `json:"person_id"`
	Name      string    `json:"name"`
	RiskLevel RiskLevel `json:"risk_level"`
	Score     float32   `json:"score"`
}

// MatchResult is the watchlist matcher's accepted best candidate.
type MatchResult struct {
	PersonID  uuid.UUID `json:"person_id"`
	RiskLevel RiskLevel `json:"risk_level"`
	Score     float32   `json:"score"`
}
