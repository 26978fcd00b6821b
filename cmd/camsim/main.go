package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
	"github.com/your-org/sentinel/internal/queue"
	"github.com/your-org/sentinel/internal/storage"
)

// camsim is a synthetic camera producer: it uploads generated evidence
// payloads to the evidence store and publishes raw detections onto the
// detections queue, at a configurable rate per camera. Used for load
// testing the pipeline and demoing the live feed without real cameras.

var detectionTypes = []models.DetectionType{
	models.DetectionFaceMatch,
	models.DetectionSuspiciousBehavior,
	models.DetectionEmotionAlert,
	models.DetectionLoitering,
	models.DetectionIntrusion,
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	cameras := flag.String("cameras", "cam-01,cam-02", "comma-separated camera ids to simulate")
	rate := flag.Duration("rate", 2*time.Second, "interval between detections per camera")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting camera simulator", "cameras", *cameras, "rate", rate.String())

	evidence, err := storage.NewEvidenceStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := evidence.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, cam := range strings.Split(*cameras, ",") {
		cam = strings.TrimSpace(cam)
		if cam == "" {
			continue
		}
		go simulate(ctx, cam, *rate, evidence, producer)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("camera simulator stopped")
}

func simulate(ctx context.Context, cameraID string, rate time.Duration, evidence *storage.EvidenceStore, producer *queue.Producer) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n++
		now := time.Now().UTC()

		payload := []byte(fmt.Sprintf("synthetic frame %s #%d at %s", cameraID, n, now.Format(time.RFC3339Nano)))
		key := fmt.Sprintf("evidence/%s/sim-%d.jpg", cameraID, now.UnixNano())
		hash, err := evidence.PutEvidence(ctx, key, payload, "image/jpeg")
		if err != nil {
			slog.Warn("upload evidence", "camera_id", cameraID, "error", err)
			continue
		}

		raw := models.RawDetection{
			CameraID:      cameraID,
			DetectionType: detectionTypes[rng.Intn(len(detectionTypes))],
			Confidence:    0.5 + rng.Float32()*0.5,
			Timestamp:     now,
			Descriptor:    randomDescriptor(rng),
			PayloadKey:    key,
			PayloadHash:   hash,
		}

		if err := producer.PublishDetection(ctx, cameraID, raw); err != nil {
			slog.Warn("publish detection", "camera_id", cameraID, "error", err)
			continue
		}
		slog.Debug("detection published", "camera_id", cameraID, "type", raw.DetectionType, "n", n)
	}
}

// randomDescriptor emits a unit-ish 512-dim vector so similarity search
// has something to chew on. Roughly every third detection carries no
// descriptor, like a behavioral detection would.
func randomDescriptor(rng *rand.Rand) []float32 {
	if rng.Intn(3) == 0 {
		return nil
	}
	v := make([]float32, 512)
	for i := range v {
		v[i] = rng.Float32()*2 - 1
	}
	return v
}
