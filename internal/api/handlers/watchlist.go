package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/storage"
	"github.com/your-org/sentinel/pkg/dto"
)

type WatchlistHandler struct {
	db *storage.PostgresStore
}

func NewWatchlistHandler(db *storage.PostgresStore) *WatchlistHandler {
	return &WatchlistHandler{db: db}
}

func (h *WatchlistHandler) Enroll(c *gin.Context) {
	var req dto.EnrollPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	risk := models.RiskLevel(req.RiskLevel)
	if req.RiskLevel == "" {
		risk = models.RiskMedium
	}
	if !risk.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown risk_level"})
		return
	}
	if len(req.Embeddings) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one embedding required"})
		return
	}

	p := &models.WatchlistPerson{
		Name:             req.Name,
		Category:         req.Category,
		RiskLevel:        risk,
		AuthorizationRef: req.AuthorizationRef,
		EnrolledBy:       req.EnrolledBy,
	}
	if err := h.db.EnrollPerson(c.Request.Context(), p, req.Embeddings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toPersonResponse(p))
}

func (h *WatchlistHandler) List(c *gin.Context) {
	persons, err := h.db.ListPersons(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, toPersonResponse(&persons[i]))
	}
	c.JSON(http.StatusOK, gin.H{"persons": resp})
}

func (h *WatchlistHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	p, err := h.db.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	c.JSON(http.StatusOK, toPersonResponse(p))
}

func toPersonResponse(p *models.WatchlistPerson) dto.PersonResponse {
	resp := dto.PersonResponse{
		ID:              p.ID,
		Name:            p.Name,
		Category:        p.Category,
		RiskLevel:       string(p.RiskLevel),
		Active:          p.Active,
		LastSeenCamera:  p.LastSeenCamera,
		TotalDetections: p.TotalDetections,
		CreatedAt:       p.CreatedAt.UTC().Format(time.RFC3339),
	}
	if p.LastSeenAt != nil {
		resp.LastSeenAt = p.LastSeenAt.UTC().Format(time.RFC3339)
	}
	return resp
}
