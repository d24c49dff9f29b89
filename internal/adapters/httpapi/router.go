package httpapi

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"geochat/internal/adapters/store"
	"geochat/internal/adapters/ws"
	"geochat/internal/app"
	"geochat/internal/config"
)

// ClientTokenMiddleware gives every browser a stable opaque token used
// as the session id for its websocket connections.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *ws.Controller, st *store.Bolt, reg *app.Registry) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GeochatSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", handleHealth)

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	rooms := roomHandlers{store: st, registry: reg}
	api.GET("/rooms", rooms.list)
	api.POST("/rooms", rooms.create)
	api.GET("/rooms/:id", rooms.get)
	api.GET("/rooms/:id/messages", rooms.messages)

	log.Info().Str("module", "adapters.httpapi").Msg("router setup")
	return r
}
