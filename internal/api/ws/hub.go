package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/sentinel/internal/bus"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
	"github.com/your-org/sentinel/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Hub upgrades operator connections and bridges them onto the event
// bus. Each client gets its own bus subscription, so a stalled socket
// only ever loses its own messages.
type Hub struct {
	bus *bus.Bus
}

func NewHub(b *bus.Bus) *Hub {
	return &Hub{bus: b}
}

// HandleWS handles WebSocket upgrade requests. Filters come from query
// params: camera_id, types (comma-separated), min_risk.
func (h *Hub) HandleWS(c *gin.Context) {
	filter := bus.Filter{
		CameraID: c.Query("camera_id"),
		MinRisk:  models.RiskLevel(c.Query("min_risk")),
	}
	if typesStr := c.Query("types"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			filter.Types = append(filter.Types, models.DetectionType(strings.TrimSpace(t)))
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	sub := h.bus.Subscribe(filter)
	ctx, cancel := context.WithCancel(c.Request.Context())

	observability.WSConnections.Inc()
	slog.Debug("ws client connected", "camera_filter", filter.CameraID)

	go writePump(ctx, conn, sub)
	go readPump(conn, func() {
		cancel()
		sub.Close()
		observability.WSConnections.Dec()
		slog.Debug("ws client disconnected")
	})
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *bus.Subscription) {
	defer conn.Close()
	for {
		msg, ok := sub.Next(ctx)
		if !ok {
			return
		}
		data, err := json.Marshal(toWire(msg))
		if err != nil {
			slog.Error("marshal ws message", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func readPump(conn *websocket.Conn, onClose func()) {
	defer func() {
		onClose()
		conn.Close()
	}()

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// We don't process incoming messages from clients.
		// This loop exists to detect disconnection.
	}
}

func toWire(msg bus.Message) dto.WSMessage {
	wire := dto.WSMessage{
		Kind:        string(msg.Kind),
		MatchedRisk: string(msg.MatchedRisk),
		Alert:       msg.Alert,
		Dropped:     msg.Dropped,
	}
	if msg.Event != nil {
		ev := dto.FromEvent(msg.Event)
		wire.Event = &ev
	}
	if msg.Status != nil {
		wire.Status = &dto.StatusMessage{
			EventID:           msg.Status.EventID,
			CameraID:          msg.Status.CameraID,
			VerificationState: string(msg.Status.VerificationState),
			LedgerTxID:        msg.Status.LedgerTxID,
		}
	}
	return wire
}
