package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/sentinel/internal/api"
	"github.com/your-org/sentinel/internal/api/handlers"
	"github.com/your-org/sentinel/internal/api/ws"
	"github.com/your-org/sentinel/internal/bus"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/ledger"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
	"github.com/your-org/sentinel/internal/pipeline"
	"github.com/your-org/sentinel/internal/queue"
	"github.com/your-org/sentinel/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting sentinel API service", "port", cfg.Server.Port)

	if err := storage.MigrateUp(cfg.Database); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

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

	eventBus := bus.New(cfg.Bus.SubscriberBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ledger anchoring: durable outbox drained by a single dispatcher.
	// Confirmations publish a status update so live clients see events
	// flip to chain_anchored without polling.
	gateway := ledger.NewGatewayClient(cfg.Ledger)
	outbox := ledger.New(db, gateway, producer, cfg.Ledger, func(eventID, txID string) {
		eventBus.Publish(bus.Message{
			Kind: bus.KindStatus,
			Status: &bus.StatusUpdate{
				EventID:           eventID,
				CameraID:          models.CameraIDFromEventID(eventID),
				VerificationState: models.VerificationChainAnchored,
				LedgerTxID:        txID,
			},
		})
	})
	go outbox.Run(ctx)

	normalizer := pipeline.NewNormalizer(db, cfg.Pipeline)
	matcher := pipeline.NewMatcher(db, cfg.Matcher)
	coordinator := pipeline.NewCoordinator(ctx, normalizer, matcher, db, db, outbox, eventBus, cfg.Pipeline)

	// Queue intake: the consumer feeds raw detections into the same
	// pipeline as HTTP ingest. Validation failures are Ack'd (redelivery
	// cannot fix them); overload is Nak'd so the detection retries.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create detection consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeDetections(ctx, "sentinel-pipeline", func(ctx context.Context, msg jetstream.Msg) error {
		var raw models.RawDetection
		if err := json.Unmarshal(msg.Data(), &raw); err != nil {
			slog.Warn("discard malformed detection", "subject", msg.Subject(), "error", err)
			return nil
		}

		err := coordinator.Ingest(ctx, raw)
		var ve *pipeline.ValidationError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &ve):
			slog.Debug("detection rejected", "camera_id", raw.CameraID, "reason", ve.Reason)
			return nil
		default:
			return err
		}
	})
	if err != nil {
		slog.Warn("start detection consumer", "error", err)
	}

	hub := ws.NewHub(eventBus)

	system := handlers.NewSystemHandler(map[string]handlers.Pinger{
		"postgres": db,
		"minio":    evidence,
		"nats":     natsPinger{producer},
	})

	router := api.NewRouter(api.RouterDeps{
		APIKey:    cfg.Server.APIKey,
		System:    system,
		Ingest:    handlers.NewIngestHandler(coordinator, evidence),
		Events:    handlers.NewEventHandler(db, evidence, outbox),
		Cameras:   handlers.NewCameraHandler(db, coordinator),
		Watchlist: handlers.NewWatchlistHandler(db),
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Stop intake first, then drain lanes so accepted detections reach
	// durable storage before the dispatcher stops.
	coordinator.Close()
	cancel()

	slog.Info("sentinel API stopped")
}

// natsPinger adapts the producer's connection check to the readiness
// probe interface.
type natsPinger struct {
	producer *queue.Producer
}

func (n natsPinger) Ping(ctx context.Context) error {
	return n.producer.Ping()
}
