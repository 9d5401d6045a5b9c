package v1

import (
	"github.com/gin-gonic/gin"

	"chorus-server/experiment-api/internal/interfaces/httpserver/handlers"
)

func registerSessionRoutes(group *gin.RouterGroup, handler *handlers.SessionHandler) {
	group.POST("/experiments/:experiment_id/sessions", handler.Start)
	group.POST("/sessions/:session_id/messages", handler.SendMessage)
	group.GET("/sessions/:session_id/messages", handler.History)
	group.POST("/sessions/:session_id/cancel", handler.Cancel)
}
