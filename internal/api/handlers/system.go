package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency whose liveness gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	deps map[string]Pinger
}

func NewSystemHandler(deps map[string]Pinger) *SystemHandler {
	return &SystemHandler{deps: deps}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every dependency; a single failure makes the service
// not-ready so the load balancer stops routing ingest traffic here.
func (h *SystemHandler) Readyz(c *gin.Context) {
	status := make(gin.H, len(h.deps))
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(c.Request.Context()); err != nil {
			status[name] = err.Error()
			ready = false
		} else {
			status[name] = "ok"
		}
	}

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"ready": ready, "deps": status})
}
