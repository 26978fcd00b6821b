package dto

import "github.com/google/uuid"

type EnrollPersonRequest struct {
	Name             string      `json:"name" binding:"required"`
	Category         string      `json:"category" binding:"required"`
	RiskLevel        string      `json:"risk_level"`
	AuthorizationRef string      `json:"authorization_ref"`
	EnrolledBy       string      `json:"enrolled_by" binding:"required"`
	Embeddings       [][]float32 `json:"embeddings" binding:"required"`
}

type PersonResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	RiskLevel       string    `json:"risk_level"`
	Active          bool      `json:"active"`
	LastSeenAt      string    `json:"last_seen_at,omitempty"`
	LastSeenCamera  string    `json:"last_seen_camera,omitempty"`
	TotalDetections int       `json:"total_detections"`
	CreatedAt       string    `json:"created_at"`
}

type RegisterCameraRequest struct {
	ID       string `json:"id" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Location string `json:"location"`
}

type CameraResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}
