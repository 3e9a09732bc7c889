package main

import (
	"github.com/gin-gonic/gin"

	"phone-assistant/internal/agent"
	"phone-assistant/internal/auth"
	"phone-assistant/internal/calllog"
	"phone-assistant/internal/config"
	"phone-assistant/internal/httpapi"
	"phone-assistant/internal/rbac"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic; handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, d *agent.Dispatcher, authManager *auth.Manager, calls *calllog.Service) {
	h := httpapi.Handlers{
		Auth:        authManager,
		OpsUsername: cfg.Ops.Username,
		OpsPassword: cfg.Ops.Password,
		Calls:       calls,
		Table:       d.Table(),
		ActiveSessions: func(c *gin.Context) []httpapi.SessionSummary {
			active := d.Active()
			out := make([]httpapi.SessionSummary, 0, len(active))
			for _, s := range active {
				out = append(out, httpapi.SessionSummary{
					RoomName:            s.RoomName,
					ParticipantIdentity: s.ParticipantIdentity,
					State:               string(s.State),
					StartedAt:           s.StartedAt,
				})
			}
			return out
		},
	}

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/webhooks/livekit", agent.WebhookHandler(d, cfg.LiveKit.APIKey, cfg.LiveKit.APISecret))
	r.POST("/v1/auth/token", h.Token)

	// ops API
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	{
		v1.GET("/sessions/active", h.ListActiveSessions)
		v1.GET("/calls/recent", h.RecentCalls)
		v1.GET("/calls/:call_id/attempts", h.CallAttempts)

		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/routes", h.Routes)
		}
	}
}
