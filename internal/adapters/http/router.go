// Package http wires the request/response surface and the WebSocket
// upgrade endpoint into one gin engine.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/registry"
	"github.com/huddlehq/huddle/internal/signal"
)

func SetupRouter(cfg *config.Config, reg registry.Registry, gw *signal.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(OriginFilter(cfg.AllowedOrigins))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	h := &roomHandlers{reg: reg}
	api.POST("/create-room", h.createRoom)
	api.POST("/validate-room", h.validateRoom)
	api.GET("/rooms/:roomId", h.getRoomInfo)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.GET("/ws/signal", gw.Handle)

	return r
}

// OriginFilter rejects browser requests from origins outside the allow
// list and sets CORS headers for the ones inside it. Requests without an
// Origin header (curl, the Go client) pass through.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := false
		for _, o := range allowedOrigins {
			if origin == o {
				allowed = true
				break
			}
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
