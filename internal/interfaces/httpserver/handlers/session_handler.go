package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/interfaces/httpserver/dto"
)

// SessionHandler exposes the web/API session entry points.
type SessionHandler struct {
	orch *orchestrator.Orchestrator
	log  zerolog.Logger
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(orch *orchestrator.Orchestrator, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		orch: orch,
		log:  log.With().Str("handler", "session").Logger(),
	}
}

// Start handles POST /v1/experiments/:experiment_id/sessions
// @Summary Start a session
// @Description Opens an active session for the experiment's web or API channel.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param experiment_id path string true "Experiment public ID"
// @Param request body dto.StartSessionRequest true "Start request"
// @Success 201 {object} dto.SessionPayload
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/experiments/{experiment_id}/sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.orch.StartWebSession(c.Request.Context(), orchestrator.StartWebSessionParams{
		ExperimentPublicID:    c.Param("experiment_id"),
		ParticipantIdentifier: req.ParticipantIdentifier,
		ParticipantUserID:     req.ParticipantUserID,
		Timezone:              req.Timezone,
	})
	if err != nil {
		if errors.Is(err, experiment.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
			return
		}
		if errors.Is(err, experiment.ErrParticipantNotAllowed) {
			c.JSON(http.StatusForbidden, gin.H{"error": "participant not allowed"})
			return
		}
		h.log.Error().Err(err).Str("experiment_id", c.Param("experiment_id")).Msg("start session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.FromSession(sess))
}

// SendMessage handles POST /v1/sessions/:session_id/messages
// @Summary Send a message
// @Description Processes one participant message and returns the assistant reply.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param session_id path string true "Session public ID"
// @Param request body dto.SendMessageRequest true "Message"
// @Success 200 {object} dto.ReplyPayload
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/sessions/{session_id}/messages [post]
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.orch.HandleSessionMessage(c.Request.Context(), c.Param("session_id"), req.Text)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.log.Error().Err(err).Str("session_id", c.Param("session_id")).Msg("handle message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ReplyPayload{Reply: reply})
}

// History handles GET /v1/sessions/:session_id/messages
// @Summary Get session history
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session public ID"
// @Success 200 {array} dto.MessagePayload
// @Failure 404 {object} map[string]string
// @Router /v1/sessions/{session_id}/messages [get]
func (h *SessionHandler) History(c *gin.Context) {
	messages, err := h.orch.SessionHistory(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.log.Error().Err(err).Str("session_id", c.Param("session_id")).Msg("load history failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.FromMessages(messages))
}

// Cancel handles POST /v1/sessions/:session_id/cancel
// @Summary Cancel an in-flight generation
// @Description Flags the session's chat so the running generation stops and keeps its partial output.
// @Tags Sessions
// @Produce json
// @Param session_id path string true "Session public ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /v1/sessions/{session_id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	if err := h.orch.CancelGeneration(c.Request.Context(), c.Param("session_id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.log.Error().Err(err).Str("session_id", c.Param("session_id")).Msg("cancel generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}
