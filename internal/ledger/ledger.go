// Package ledger anchors detection events to an external consensus
// ledger through a durable outbox, decoupling ingestion latency from
// ledger latency. Submission is at-least-once but idempotent: the
// ledger's write contract is keyed by event ID, and the outbox never
// holds more than one record per event.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Writer is the external ledger-write collaborator. Write must be
// idempotent keyed by eventID: re-writing a committed event returns the
// original transaction id.
type Writer interface {
	Write(ctx context.Context, eventID, payloadHash string) (txID string, err error)
}

// ErrorKind classifies ledger write failures.
type ErrorKind int

const (
	// Transient failures are retried with backoff.
	Transient ErrorKind = iota
	// Rejected means the ledger refused the write as invalid. Terminal.
	Rejected
)

// Error is a classified ledger failure.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger: %s: %v", e.Msg, e.Err)
	}
	return "ledger: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsRejected reports whether err is a terminal ledger rejection.
func IsRejected(err error) bool {
	var le *Error
	return errors.As(err, &le) && le.Kind == Rejected
}
