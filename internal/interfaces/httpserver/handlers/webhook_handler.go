package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/infrastructure/metrics"
	"chorus-server/experiment-api/internal/infrastructure/queue"
)

// WebhookHandler receives raw platform webhook deliveries and queues
// them for asynchronous processing. Handlers acknowledge immediately;
// platforms retry aggressively on slow responses.
type WebhookHandler struct {
	tasks queue.TaskQueue
	log   zerolog.Logger
}

// NewWebhookHandler constructs the handler.
func NewWebhookHandler(tasks queue.TaskQueue, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		tasks: tasks,
		log:   log.With().Str("handler", "webhook").Logger(),
	}
}

// Telegram handles POST /v1/webhooks/telegram/:channel_id
// @Summary Receive a Telegram update
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param channel_id path string true "Experiment channel ID"
// @Success 200 {object} map[string]string
// @Router /v1/webhooks/telegram/{channel_id} [post]
func (h *WebhookHandler) Telegram(c *gin.Context) {
	h.enqueue(c, experiment.PlatformTelegram, c.Param("channel_id"))
}

// Twilio handles POST /v1/webhooks/twilio
// @Summary Receive a Twilio WhatsApp event
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Produce json
// @Success 200 {object} map[string]string
// @Router /v1/webhooks/twilio [post]
func (h *WebhookHandler) Twilio(c *gin.Context) {
	h.enqueue(c, experiment.PlatformWhatsApp, "")
}

// Facebook handles POST /v1/webhooks/facebook
// @Summary Receive a Messenger event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /v1/webhooks/facebook [post]
func (h *WebhookHandler) Facebook(c *gin.Context) {
	h.enqueue(c, experiment.PlatformFacebook, "")
}

// FacebookVerify handles GET /v1/webhooks/facebook, the Messenger
// subscription handshake: echo hub.challenge back.
func (h *WebhookHandler) FacebookVerify(c *gin.Context) {
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// Slack handles POST /v1/webhooks/slack. The url_verification
// handshake is answered inline; everything else is queued.
// @Summary Receive a Slack event
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Router /v1/webhooks/slack [post]
func (h *WebhookHandler) Slack(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	var envelope struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": envelope.Challenge})
		return
	}

	h.enqueueRaw(c, experiment.PlatformSlack, "", body)
}

func (h *WebhookHandler) enqueue(c *gin.Context, platform experiment.Platform, channelRef string) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	h.enqueueRaw(c, platform, channelRef, body)
}

func (h *WebhookHandler) enqueueRaw(c *gin.Context, platform experiment.Platform, channelRef string, body []byte) {
	task := &queue.Task{
		Kind:       queue.KindTransport,
		Platform:   string(platform),
		ChannelRef: channelRef,
		Payload:    body,
	}
	if err := h.tasks.Enqueue(c.Request.Context(), task); err != nil {
		metrics.RecordInboundMessage(string(platform), "enqueue_failed")
		h.log.Error().Err(err).Str("platform", string(platform)).Msg("enqueue webhook payload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue failed"})
		return
	}

	metrics.RecordInboundMessage(string(platform), "queued")
	c.JSON(http.StatusOK, gin.H{"status": "queued"})
}
