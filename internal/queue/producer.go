package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	DetectionsStreamName  = "RAW_DETECTIONS"
	DetectionsSubjectBase = "detections"
	AlertsSubjectBase     = "alerts"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the raw-detections work queue if it doesn't
// exist. Retries up to 30 times (1s apart) to handle NATS startup delay.
// The duplicate window gives queue-level dedup on top of the pipeline's
// own idempotency.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        DetectionsStreamName,
		Subjects:    []string{DetectionsSubjectBase + ".>"},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      10 * time.Minute,
		MaxMsgs:     500000,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
		Duplicates:  30 * time.Second,
		Description: "Raw detections from camera/AI producers",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishDetection publishes a raw detection for pipeline intake.
func (p *Producer) PublishDetection(ctx context.Context, cameraID string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal raw detection: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", DetectionsSubjectBase, cameraID)
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish raw detection: %w", err)
	}
	return nil
}

// PublishAlert publishes an operational alert (abandoned ledger
// anchoring, high-risk match) via raw NATS for external alert sinks.
func (p *Producer) PublishAlert(kind string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.nc.Publish(fmt.Sprintf("%s.%s", AlertsSubjectBase, kind), payload)
}

// QueueDepth returns the number of pending raw detections.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, DetectionsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
