package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"focusroom/internal/handler"
	"focusroom/internal/metrics"
	"focusroom/internal/middleware"
)

type Handlers struct {
	Users    *handler.UserHandler
	Rooms    *handler.RoomHandler
	Presence *handler.PresenceHandler
	Sessions *handler.SessionHandler
	// WS is optional; without it the server is pull-only.
	WS *handler.WSHandler
}

func New(
	handlers Handlers,
	m *metrics.Metrics,
	logger logrus.FieldLogger,
	origins middleware.Origins,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestLogger(logger), gin.Recovery(), middleware.CORS(origins))
	if m != nil {
		engine.Use(middleware.Metrics(m))
		engine.GET("/metrics", gin.WrapH(m.Handler()))
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	api.POST("/users", handlers.Users.Upsert)
	api.GET("/users", handlers.Users.Get)

	api.GET("/rooms", handlers.Rooms.Get)
	api.POST("/rooms", handlers.Rooms.Create)

	api.POST("/join", handlers.Presence.Join)
	presence := api.Group("/presence")
	presence.GET("", handlers.Presence.List)
	presence.PUT("", handlers.Presence.UpdateStatus)
	presence.DELETE("", handlers.Presence.Leave)
	presence.POST("/heartbeat", handlers.Presence.Heartbeat)

	session := api.Group("/session")
	session.POST("/start", handlers.Sessions.Start)
	session.PATCH("/end", handlers.Sessions.End)
	api.GET("/sessions", handlers.Sessions.List)
	api.GET("/stats", handlers.Sessions.Stats)

	if handlers.WS != nil {
		engine.GET("/ws", handlers.WS.Serve)
	}

	return engine
}
