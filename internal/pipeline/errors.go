package pipeline

import (
	"errors"
	"fmt"
)

// Validation failure reasons reported back to producers.
const (
	ReasonStale         = "stale"
	ReasonFuture        = "future"
	ReasonUnknownCamera = "unknown_camera"
	ReasonOutOfRange    = "out_of_range"
	ReasonBadType       = "bad_type"
)

// ValidationError rejects a malformed or untimely raw detection. The
// producer is notified and the pipeline never retries it.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Detail)
	}
	return "validation failed (" + e.Reason + ")"
}

// ErrOverloaded signals backpressure: the camera's lane is full and the
// producer must retry later. Queuing silently instead would let one
// over-active camera starve the rest.
var ErrOverloaded = errors.New("camera lane overloaded, retry later")

// ErrCameraDraining is returned for ingest against a camera whose lane
// is shutting down.
var ErrCameraDraining = errors.New("camera is draining")

// ErrShutdown is returned when the coordinator no longer accepts work.
var ErrShutdown = errors.New("pipeline shutting down")
