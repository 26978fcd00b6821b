package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sentinel/internal/ledger"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/storage"
	"github.com/your-org/sentinel/pkg/dto"
)

type EventHandler struct {
	db       *storage.PostgresStore
	evidence *storage.EvidenceStore
	outbox   *ledger.Outbox
}

func NewEventHandler(db *storage.PostgresStore, evidence *storage.EvidenceStore, outbox *ledger.Outbox) *EventHandler {
	return &EventHandler{db: db, evidence: evidence, outbox: outbox}
}

func (h *EventHandler) List(c *gin.Context) {
	q := storage.EventQuery{
		CameraID:          c.Query("camera_id"),
		DetectionType:     models.DetectionType(c.Query("type")),
		VerificationState: models.VerificationState(c.Query("verification_state")),
		MatchedOnly:       c.Query("matched") == "true",
	}

	if fromStr := c.Query("from"); fromStr != "" {
		if t, err := time.Parse(time.RFC3339, fromStr); err == nil {
			q.From = &t
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if t, err := time.Parse(time.RFC3339, toStr); err == nil {
			q.To = &t
		}
	}

	q.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	q.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.QueryEvents(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, dto.FromEvent(&events[i]))
	}

	c.JSON(http.StatusOK, dto.EventListResponse{Events: resp, Total: total})
}

func (h *EventHandler) Get(c *gin.Context) {
	ev, err := h.db.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	c.JSON(http.StatusOK, dto.FromEvent(ev))
}

// Review marks an event human-reviewed, optionally flagging it as a
// false positive.
func (h *EventHandler) Review(c *gin.Context) {
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.MarkReviewed(c.Request.Context(), c.Param("id"), req.Reviewer, req.FalsePositive); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed"})
}

// Snapshot streams the evidence payload for an event.
func (h *EventHandler) Snapshot(c *gin.Context) {
	ev, err := h.db.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil || ev.PayloadKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.evidence.GetEvidence(c.Request.Context(), ev.PayloadKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

// Verify recomputes the stored payload's hash and compares it with the
// hash recorded at ingest (and anchored to the ledger once confirmed).
func (h *EventHandler) Verify(c *gin.Context) {
	ev, err := h.db.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}

	currentHash, err := h.evidence.HashEvidence(c.Request.Context(), ev.PayloadKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash evidence: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.VerifyResponse{
		EventID:     ev.EventID,
		Anchored:    ev.VerificationState == models.VerificationChainAnchored,
		LedgerTxID:  ev.LedgerTxID,
		StoredHash:  ev.PayloadHash,
		CurrentHash: currentHash,
		Intact:      currentHash == ev.PayloadHash,
	})
}

// AnchorStatus exposes the outbox record for an event, for operators
// watching a submission retry its way to the ledger.
func (h *EventHandler) AnchorStatus(c *gin.Context) {
	rec, err := h.outbox.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no outbox record"})
		return
	}

	resp := dto.OutboxStatusResponse{
		EventID:      rec.EventID,
		State:        string(rec.State),
		AttemptCount: rec.AttemptCount,
		LastError:    rec.LastError,
		LedgerTxID:   rec.LedgerTxID,
	}
	if !rec.State.Terminal() {
		resp.NextRetryAt = rec.NextRetryAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
