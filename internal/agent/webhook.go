package agent

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	lkauth "github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"

	"phone-assistant/pkg/logger"
)

// WebhookHandler receives room lifecycle events from the media platform.
// Signatures are verified against the API key pair before anything is acted
// on; unsigned or stale requests are rejected.
func WebhookHandler(d *Dispatcher, apiKey, apiSecret string) gin.HandlerFunc {
	provider := lkauth.NewSimpleKeyProvider(apiKey, apiSecret)

	return func(c *gin.Context) {
		log := logger.FromGin(c)

		ev, err := webhook.ReceiveWebhookEvent(c.Request, provider)
		if err != nil {
			log.Warn("webhook rejected", "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook signature"})
			return
		}
		if ev.Room == nil || ev.Room.Name == "" {
			c.Status(http.StatusOK)
			return
		}
		roomName := ev.Room.Name

		switch ev.Event {
		case webhook.EventRoomStarted, webhook.EventParticipantJoined:
			err := d.StartSession(c.Request.Context(), roomName)
			switch {
			case errors.Is(err, ErrAtCapacity):
				log.Warn("call refused, at capacity", "room", roomName)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "at capacity"})
				return
			case err != nil:
				log.Error("session start failed", "room", roomName, "err", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session start failed"})
				return
			}
		case webhook.EventParticipantLeft:
			if ev.Participant != nil && ev.Participant.Identity != agentIdentity {
				d.EndSession(roomName)
			}
		case webhook.EventRoomFinished:
			d.EndSession(roomName)
		}

		c.Status(http.StatusOK)
	}
}
