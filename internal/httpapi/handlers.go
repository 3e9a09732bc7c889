package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"phone-assistant/internal/auth"
	"phone-assistant/internal/calllog"
	"phone-assistant/internal/rbac"
	"phone-assistant/internal/routing"
)

// SessionSummary is the ops view of one live session.
type SessionSummary struct {
	RoomName            string    `json:"room_name"`
	ParticipantIdentity string    `json:"participant_identity,omitempty"`
	State               string    `json:"state"`
	StartedAt           time.Time `json:"started_at"`
}

// Handlers groups the ops API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth *auth.Manager

	// OpsUsername/OpsPassword is the credential exchanged for tokens.
	OpsUsername string
	OpsPassword string

	Calls *calllog.Service
	Table *routing.Table

	// ActiveSessions reports live sessions; injected to keep this package
	// free of session-management dependencies.
	ActiveSessions func(c *gin.Context) []SessionSummary
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token exchanges the ops credential for an access token.
func (h Handlers) Token(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.OpsUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.OpsPassword)) == 1
	if !userOK || !passOK {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.Auth.Issue(time.Now(), req.Username, rbac.RoleOperator)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": tok})
}

// ListActiveSessions reports live sessions on this instance.
func (h Handlers) ListActiveSessions(c *gin.Context) {
	if h.ActiveSessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session source not configured"})
		return
	}
	sessions := h.ActiveSessions(c)
	if sessions == nil {
		sessions = []SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// RecentCalls returns the newest call records.
func (h Handlers) RecentCalls(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.Calls.RecentCalls(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log query failed"})
		return
	}
	if recs == nil {
		recs = []calllog.CallRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}

// CallAttempts returns the transfer attempts of one call.
func (h Handlers) CallAttempts(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	attempts, err := h.Calls.AttemptsForCall(c.Request.Context(), callID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log query failed"})
		return
	}
	if attempts == nil {
		attempts = []calllog.TransferAttempt{}
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

// Routes dumps the routing table. Admin-only: destinations are internal
// numbers that do not belong in every operator's hands.
func (h Handlers) Routes(c *gin.Context) {
	if h.Table == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing table not configured"})
		return
	}
	type routeView struct {
		Signal      string `json:"signal"`
		Label       string `json:"label"`
		Destination string `json:"destination"`
	}
	var out []routeView
	for _, r := range h.Table.Routes() {
		out = append(out, routeView{Signal: r.Signal, Label: r.Label, Destination: r.Destination})
	}
	c.JSON(http.StatusOK, gin.H{"routes": out})
}
