package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/mlee/checkline-backend/internal/middleware"
)

// FeedController upgrades authenticated devices onto the change feed. The
// subscriber's scope comes from its token; it is the same scope the read
// path enforces, so a device only ever hears about rows it could fetch.
type FeedController struct {
	hub      *feed.Hub
	upgrader websocket.Upgrader
}

func NewFeedController(hub *feed.Hub, allowedOrigins []string) *FeedController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &FeedController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Native register apps send no Origin header.
				if origin == "" {
					return true
				}
				return allowed[origin]
			},
		},
	}
}

// Subscribe upgrades the connection and attaches the device to the hub
// GET /api/v1/feed
func (ctrl *FeedController) Subscribe(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	deviceKey, _ := middleware.GetDeviceKey(c)

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade feed connection", err, map[string]interface{}{
			"device_key": deviceKey,
		})
		return
	}

	sub := &feed.Subscriber{
		Hub:           ctrl.hub,
		Conn:          &feed.Conn{Conn: conn},
		DeviceKey:     deviceKey,
		Scope:         scope,
		Send:          make(chan []byte, 256),
		LastResetTime: time.Now(),
	}

	ctrl.hub.Register(sub)

	go sub.WritePump()
	go sub.ReadPump()
}
