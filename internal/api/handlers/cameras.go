package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/pipeline"
	"github.com/your-org/sentinel/internal/storage"
	"github.com/your-org/sentinel/pkg/dto"
)

type CameraHandler struct {
	db          *storage.PostgresStore
	coordinator *pipeline.Coordinator
}

func NewCameraHandler(db *storage.PostgresStore, coordinator *pipeline.Coordinator) *CameraHandler {
	return &CameraHandler{db: db, coordinator: coordinator}
}

func (h *CameraHandler) Register(c *gin.Context) {
	var req dto.RegisterCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cam := &models.Camera{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		Active:   true,
	}
	if err := h.db.RegisterCamera(c.Request.Context(), cam); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toCameraResponse(cam))
}

func (h *CameraHandler) List(c *gin.Context) {
	cameras, err := h.db.ListCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CameraResponse, 0, len(cameras))
	for i := range cameras {
		resp = append(resp, toCameraResponse(&cameras[i]))
	}
	c.JSON(http.StatusOK, gin.H{"cameras": resp})
}

func (h *CameraHandler) Activate(c *gin.Context) {
	if err := h.db.SetCameraActive(c.Request.Context(), c.Param("id"), true); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

// Deactivate marks the camera inactive and drains its processing lane.
// Detections already accepted for the camera finish normally.
func (h *CameraHandler) Deactivate(c *gin.Context) {
	id := c.Param("id")
	if err := h.db.SetCameraActive(c.Request.Context(), id, false); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.coordinator.DeactivateCamera(id)
	c.JSON(http.StatusOK, gin.H{"status": "inactive"})
}

func toCameraResponse(cam *models.Camera) dto.CameraResponse {
	return dto.CameraResponse{
		ID:        cam.ID,
		Name:      cam.Name,
		Location:  cam.Location,
		Active:    cam.Active,
		CreatedAt: cam.CreatedAt.UTC().Format(time.RFC3339),
	}
}
