package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/pipeline"
	"github.com/your-org/sentinel/internal/storage"
	"github.com/your-org/sentinel/pkg/dto"
)

// IngestHandler accepts raw detections from trusted producers over HTTP.
// Most producers publish to NATS instead; this path exists for simple
// integrations and testing.
type IngestHandler struct {
	coordinator *pipeline.Coordinator
	evidence    *storage.EvidenceStore
}

func NewIngestHandler(coordinator *pipeline.Coordinator, evidence *storage.EvidenceStore) *IngestHandler {
	return &IngestHandler{coordinator: coordinator, evidence: evidence}
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
		return
	}

	raw := models.RawDetection{
		CameraID:      req.CameraID,
		DetectionType: models.DetectionType(req.DetectionType),
		Confidence:    req.Confidence,
		Timestamp:     ts,
		Descriptor:    req.Descriptor,
		PayloadKey:    req.PayloadKey,
		PayloadHash:   req.PayloadHash,
	}

	// Inline payloads are stored before the detection enters the
	// pipeline, so the event always references durable evidence.
	if req.Payload != "" {
		data, err := base64.StdEncoding.DecodeString(req.Payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be base64"})
			return
		}
		key := fmt.Sprintf("evidence/%s/%s.jpg", req.CameraID, uuid.New().String())
		hash, err := h.evidence.PutEvidence(c.Request.Context(), key, data, "image/jpeg")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store evidence: " + err.Error()})
			return
		}
		raw.PayloadKey = key
		raw.PayloadHash = hash
	}

	err = h.coordinator.Ingest(c.Request.Context(), raw)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, dto.IngestResponse{Accepted: true})
	case errors.Is(err, pipeline.ErrOverloaded):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, dto.IngestResponse{Accepted: false, Reason: "overloaded"})
	case errors.Is(err, pipeline.ErrCameraDraining), errors.Is(err, pipeline.ErrShutdown):
		c.JSON(http.StatusServiceUnavailable, dto.IngestResponse{Accepted: false, Reason: err.Error()})
	default:
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			c.JSON(http.StatusUnprocessableEntity, dto.IngestResponse{Accepted: false, Reason: ve.Reason})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
