package v1

import (
	"github.com/gin-gonic/gin"

	"chorus-server/experiment-api/internal/interfaces/httpserver/handlers"
)

func registerWebhookRoutes(group *gin.RouterGroup, handler *handlers.WebhookHandler) {
	group.POST("/webhooks/telegram/:channel_id", handler.Telegram)
	group.POST("/webhooks/twilio", handler.Twilio)
	group.GET("/webhooks/facebook", handler.FacebookVerify)
	group.POST("/webhooks/facebook", handler.Facebook)
	group.POST("/webhooks/slack", handler.Slack)
}
