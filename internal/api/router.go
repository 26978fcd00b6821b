package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/sentinel/internal/api/handlers"
	"github.com/your-org/sentinel/internal/api/ws"
	"github.com/your-org/sentinel/internal/auth"
)

type RouterDeps struct {
	APIKey    string
	System    *handlers.SystemHandler
	Ingest    *handlers.IngestHandler
	Events    *handlers.EventHandler
	Cameras   *handlers.CameraHandler
	Watchlist *handlers.WatchlistHandler
	Hub       *ws.Hub
}

func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggingMiddleware())
	router.Use(cors.Default())

	router.GET("/healthz", deps.System.Healthz)
	router.GET("/readyz", deps.System.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(auth.RequireKey(deps.APIKey))
	{
		v1.POST("/ingest", deps.Ingest.Ingest)

		v1.GET("/events", deps.Events.List)
		v1.GET("/events/:id", deps.Events.Get)
		v1.POST("/events/:id/review", deps.Events.Review)
		v1.GET("/events/:id/snapshot", deps.Events.Snapshot)
		v1.GET("/events/:id/verify", deps.Events.Verify)
		v1.GET("/events/:id/anchor", deps.Events.AnchorStatus)

		v1.POST("/cameras", deps.Cameras.Register)
		v1.GET("/cameras", deps.Cameras.List)
		v1.POST("/cameras/:id/activate", deps.Cameras.Activate)
		v1.POST("/cameras/:id/deactivate", deps.Cameras.Deactivate)

		v1.POST("/watchlist", deps.Watchlist.Enroll)
		v1.GET("/watchlist", deps.Watchlist.List)
		v1.GET("/watchlist/:id", deps.Watchlist.Get)

		v1.GET("/ws", deps.Hub.HandleWS)
	}

	return router
}
