package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Cameras ---

func (s *PostgresStore) RegisterCamera(ctx context.Context, cam *models.Camera) error {
	return s.pool.QueryRow(ctx,
		`INSERT INTO cameras (id, name, location, active) VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		cam.ID, cam.Name, cam.Location, cam.Active,
	).Scan(&cam.CreatedAt, &cam.UpdatedAt)
}

func (s *PostgresStore) GetCamera(ctx context.Context, id string) (*models.Camera, error) {
	cam := &models.Camera{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, location, active, created_at, updated_at FROM cameras WHERE id = $1`, id,
	).Scan(&cam.ID, &cam.Name, &cam.Location, &cam.Active, &cam.CreatedAt, &cam.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return cam, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, location, active, created_at, updated_at FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var cam models.Camera
		if err := rows.Scan(&cam.ID, &cam.Name, &cam.Location, &cam.Active, &cam.CreatedAt, &cam.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

func (s *PostgresStore) SetCameraActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cameras SET active = $1, updated_at = now() WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set camera active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("camera not found")
	}
	return nil
}

// --- Watchlist ---

func (s *PostgresStore) EnrollPerson(ctx context.Context, p *models.WatchlistPerson, embeddings [][]float32) error {
	if p.Metadata == nil {
		p.Metadata = json.RawMessage("{}")
	}
	p.ID = uuid.New()
	p.Active = true

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enroll: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO watchlist_persons (id, name, category, risk_level, authorization_ref, enrolled_by, active, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Category, p.RiskLevel, p.AuthorizationRef, p.EnrolledBy, p.Active, p.Metadata,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enroll person: %w", err)
	}

	for _, emb := range embeddings {
		vec := pgvector.NewVector(emb)
		if _, err := tx.Exec(ctx,
			`INSERT INTO watchlist_embeddings (id, person_id, embedding) VALUES ($1, $2, $3)`,
			uuid.New(), p.ID, vec); err != nil {
			return fmt.Errorf("add embedding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enroll: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.WatchlistPerson, error) {
	p := &models.WatchlistPerson{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category, risk_level, authorization_ref, enrolled_by, active,
		        last_seen_at, last_seen_camera, total_detections, metadata, created_at, updated_at
		 FROM watchlist_persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Category, &p.RiskLevel, &p.AuthorizationRef, &p.EnrolledBy, &p.Active,
		&p.LastSeenAt, &p.LastSeenCamera, &p.TotalDetections, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.WatchlistPerson, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, risk_level, authorization_ref, enrolled_by, active,
		        last_seen_at, last_seen_camera, total_detections, metadata, created_at, updated_at
		 FROM watchlist_persons ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.WatchlistPerson
	for rows.Next() {
		var p models.WatchlistPerson
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.RiskLevel, &p.AuthorizationRef, &p.EnrolledBy, &p.Active,
			&p.LastSeenAt, &p.LastSeenCamera, &p.TotalDetections, &p.Metadata, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// SearchWatchlist returns the top-k active watchlist candidates for a
// descriptor, ranked by cosine similarity. This is the similarity-search
// collaborator behind the watchlist matcher; acceptance policy lives in
// the pipeline package.
func (s *PostgresStore) SearchWatchlist(ctx context.Context, descriptor []float32, k int) ([]models.Candidate, error) {
	if k <= 0 {
		k = 5
	}
	vec := pgvector.NewVector(descriptor)

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (p.id) p.id, p.name, p.risk_level, 1 - (we.embedding <=> $1) AS score
		 FROM watchlist_embeddings we
		 JOIN watchlist_persons p ON p.id = we.person_id
		 WHERE p.active
		 ORDER BY p.id, we.embedding <=> $1
		 LIMIT $2`,
		vec, k)
	if err != nil {
		return nil, fmt.Errorf("search watchlist: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var c models.Candidate
		if err := rows.Scan(&c.PersonID, &c.Name, &c.RiskLevel, &c.Score); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (s *PostgresStore) UpdateLastSeen(ctx context.Context, personID uuid.UUID, cameraID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE watchlist_persons
		 SET last_seen_at = $1, last_seen_camera = $2, total_detections = total_detections + 1, updated_at = now()
		 WHERE id = $3`,
		at, cameraID, personID)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	return nil
}

// --- Events ---

// CreateEvent persists a finalized detection event. Inserting the same
// event_id twice is a no-op, preserving ingest idempotency across
// producer retries and process restarts.
func (s *PostgresStore) CreateEvent(ctx context.Context, ev *models.DetectionEvent) error {
	ev.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (event_id, camera_id, detection_type, confidence, timestamp,
		                     matched_person_id, match_score, payload_key, payload_hash,
		                     verification_state, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.CameraID, ev.DetectionType, ev.Confidence, ev.Timestamp,
		ev.MatchedPersonID, ev.MatchScore, ev.PayloadKey, ev.PayloadHash,
		ev.VerificationState, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (*models.DetectionEvent, error) {
	ev := &models.DetectionEvent{}
	err := s.pool.QueryRow(ctx,
		`SELECT event_id, camera_id, detection_type, confidence, timestamp,
		        matched_person_id, match_score, payload_key, payload_hash,
		        verification_state, COALESCE(ledger_tx_id, ''), anchored_at,
		        reviewed, false_positive, COALESCE(reviewed_by, ''), reviewed_at, created_at
		 FROM events WHERE event_id = $1`, eventID,
	).Scan(&ev.EventID, &ev.CameraID, &ev.DetectionType, &ev.Confidence, &ev.Timestamp,
		&ev.MatchedPersonID, &ev.MatchScore, &ev.PayloadKey, &ev.PayloadHash,
		&ev.VerificationState, &ev.LedgerTxID, &ev.AnchoredAt,
		&ev.Reviewed, &ev.FalsePositive, &ev.ReviewedBy, &ev.ReviewedAt, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// EventQuery filters the operator-facing event listing.
type EventQuery struct {
	CameraID          string
	DetectionType     models.DetectionType
	VerificationState models.VerificationState
	From, To          *time.Time
	MatchedOnly       bool
	Limit, Offset     int
}

func (s *PostgresStore) QueryEvents(ctx context.Context, q EventQuery) ([]models.DetectionEvent, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Limit > 500 {
		q.Limit = 500
	}

	baseWhere := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if q.CameraID != "" {
		baseWhere += fmt.Sprintf(" AND camera_id = $%d", argIdx)
		args = append(args, q.CameraID)
		argIdx++
	}
	if q.DetectionType != "" {
		baseWhere += fmt.Sprintf(" AND detection_type = $%d", argIdx)
		args = append(args, q.DetectionType)
		argIdx++
	}
	if q.VerificationState != "" {
		baseWhere += fmt.Sprintf(" AND verification_state = $%d", argIdx)
		args = append(args, q.VerificationState)
		argIdx++
	}
	if q.From != nil {
		baseWhere += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *q.From)
		argIdx++
	}
	if q.To != nil {
		baseWhere += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *q.To)
		argIdx++
	}
	if q.MatchedOnly {
		baseWhere += " AND matched_person_id IS NOT NULL"
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM events " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT event_id, camera_id, detection_type, confidence, timestamp,
		        matched_person_id, match_score, payload_key, payload_hash,
		        verification_state, COALESCE(ledger_tx_id, ''), anchored_at,
		        reviewed, false_positive, COALESCE(reviewed_by, ''), reviewed_at, created_at
		 FROM events %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		if err := rows.Scan(&ev.EventID, &ev.CameraID, &ev.DetectionType, &ev.Confidence, &ev.Timestamp,
			&ev.MatchedPersonID, &ev.MatchScore, &ev.PayloadKey, &ev.PayloadHash,
			&ev.VerificationState, &ev.LedgerTxID, &ev.AnchoredAt,
			&ev.Reviewed, &ev.FalsePositive, &ev.ReviewedBy, &ev.ReviewedAt, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, nil
}

// RecentEvents returns a camera's newest events since the given time,
// used to rebuild lane sequence counters and dedupe state after a
// restart. Only identity fields are populated.
func (s *PostgresStore) RecentEvents(ctx context.Context, cameraID string, since time.Time, limit int) ([]models.DetectionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, camera_id, detection_type, timestamp
		 FROM events
		 WHERE camera_id = $1 AND timestamp >= $2
		 ORDER BY timestamp DESC
		 LIMIT $3`,
		cameraID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []models.DetectionEvent
	for rows.Next() {
		var ev models.DetectionEvent
		if err := rows.Scan(&ev.EventID, &ev.CameraID, &ev.DetectionType, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan recent event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// MarkAnchored records the ledger transaction on an event. The guard on
// ledger_tx_id makes the transaction id write-once: a second confirm for
// the same event changes nothing.
func (s *PostgresStore) MarkAnchored(ctx context.Context, eventID, txID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events
		 SET verification_state = $1, ledger_tx_id = $2, anchored_at = $3
		 WHERE event_id = $4 AND ledger_tx_id IS NULL`,
		models.VerificationChainAnchored, txID, at, eventID)
	if err != nil {
		return fmt.Errorf("mark anchored: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkReviewed(ctx context.Context, eventID, reviewer string, falsePositive bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET reviewed = true, false_positive = $1, reviewed_by = $2, reviewed_at = now()
		 WHERE event_id = $3`,
		falsePositive, reviewer, eventID)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found")
	}
	return nil
}

// --- Outbox ---

// CreateOutboxRecord enqueues a pending ledger submission for an event.
// Idempotent: a record already present for the event is returned as-is
// and no duplicate is created.
func (s *PostgresStore) CreateOutboxRecord(ctx context.Context, eventID, payloadHash string) (*models.OutboxRecord, error) {
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outbox (event_id, payload_hash, state, attempt_count, next_retry_at, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $5)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, payloadHash, models.OutboxPending, now, now)
	if err != nil {
		return nil, fmt.Errorf("create outbox record: %w", err)
	}
	return s.GetOutboxRecord(ctx, eventID)
}

func (s *PostgresStore) GetOutboxRecord(ctx context.Context, eventID string) (*models.OutboxRecord, error) {
	rec := &models.OutboxRecord{}
	err := s.pool.QueryRow(ctx,
		`SELECT event_id, payload_hash, state, attempt_count, next_retry_at,
		        COALESCE(last_error, ''), COALESCE(ledger_tx_id, ''), created_at, updated_at
		 FROM outbox WHERE event_id = $1`, eventID,
	).Scan(&rec.EventID, &rec.PayloadHash, &rec.State, &rec.AttemptCount, &rec.NextRetryAt,
		&rec.LastError, &rec.LedgerTxID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get outbox record: %w", err)
	}
	return rec, nil
}

// DueOutboxRecords returns records ready for dispatch: pending ones and
// failed ones whose backoff has elapsed.
func (s *PostgresStore) DueOutboxRecords(ctx context.Context, now time.Time, limit int) ([]models.OutboxRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, payload_hash, state, attempt_count, next_retry_at,
		        COALESCE(last_error, ''), COALESCE(ledger_tx_id, ''), created_at, updated_at
		 FROM outbox
		 WHERE state IN ($1, $2) AND next_retry_at <= $3
		 ORDER BY next_retry_at
		 LIMIT $4`,
		models.OutboxPending, models.OutboxFailed, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due outbox records: %w", err)
	}
	defer rows.Close()

	var recs []models.OutboxRecord
	for rows.Next() {
		var rec models.OutboxRecord
		if err := rows.Scan(&rec.EventID, &rec.PayloadHash, &rec.State, &rec.AttemptCount, &rec.NextRetryAt,
			&rec.LastError, &rec.LedgerTxID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *PostgresStore) MarkOutboxSubmitting(ctx context.Context, eventID string, attempt int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET state = $1, attempt_count = $2, updated_at = now() WHERE event_id = $3`,
		models.OutboxSubmitting, attempt, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox submitting: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkOutboxConfirmed(ctx context.Context, eventID, txID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET state = $1, ledger_tx_id = $2, updated_at = now() WHERE event_id = $3`,
		models.OutboxConfirmed, txID, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox confirmed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkOutboxFailed(ctx context.Context, eventID string, nextRetryAt time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET state = $1, next_retry_at = $2, last_error = $3, updated_at = now() WHERE event_id = $4`,
		models.OutboxFailed, nextRetryAt, lastError, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkOutboxAbandoned(ctx context.Context, eventID, lastError string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outbox SET state = $1, last_error = $2, updated_at = now() WHERE event_id = $3`,
		models.OutboxAbandoned, lastError, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox abandoned: %w", err)
	}
	return nil
}

// OutboxDepth counts records still awaiting confirmation.
func (s *PostgresStore) OutboxDepth(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE state NOT IN ($1, $2)`,
		models.OutboxConfirmed, models.OutboxAbandoned).Scan(&n)
	return n, err
}
