package web

import (
	"homepanel/internal/broadcast"
	"homepanel/internal/db"
	"homepanel/internal/devstore"
	"homepanel/internal/engine"
	"homepanel/internal/web/api"

	"github.com/gin-gonic/gin"
)

type WebServer struct {
	router *gin.Engine
}

// NewWebServer builds the HTTP surface: device and automation management plus
// the websocket endpoint into the broadcast hub
func NewWebServer(dbConn *db.DB, store *devstore.Store, publisher *broadcast.Publisher, hub *broadcast.Hub, eng *engine.Engine) *WebServer {
	router := gin.Default()

	api.RegisterDeviceRoutes(router, dbConn, store, publisher, eng)
	api.RegisterAutomationRoutes(router, dbConn)

	router.GET("/ws", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})

	return &WebServer{router: router}
}

func (ws *WebServer) Start(addr string) error {
	return ws.router.Run(addr)
}
