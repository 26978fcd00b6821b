package models

import "time"

// OutboxState is the delivery state of one ledger submission.
type OutboxState string

const (
	OutboxPending    OutboxState = "pending"
	OutboxSubmitting OutboxState = "submitting"
	OutboxConfirmed  OutboxState = "confirmed"
	OutboxFailed     OutboxState = "failed"
	OutboxAbandoned  OutboxState = "abandoned"
)

// Terminal reports whether the record will never be dispatched again.
func (s OutboxState) Terminal() bool {
	return s == OutboxConfirmed || s == OutboxAbandoned
}

// OutboxRecord tracks one DetectionEvent's path to the consensus
// ledger. Owned exclusively by the ledger dispatcher once created.
type OutboxRecord struct {
	EventID      string      `json:"event_id" db:"event_id"`
	PayloadHash  string      `json:"payload_hash" db:"payload_hash"`
	State        OutboxState `json:"state" db:"state"`
	AttemptCount int         `json:"attempt_count" db:"attempt_count"`
	NextRetryAt  time.Time   `json:"next_retry_at" db:"next_retry_at"`
	LastError    string      `json:"last_error,omitempty" db:"last_error"`
	LedgerTxID   string      `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}
