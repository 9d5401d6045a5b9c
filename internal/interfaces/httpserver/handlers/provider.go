package handlers

import (
	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/infrastructure/queue"
)

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Session *SessionHandler
	Webhook *WebhookHandler
}

// NewProvider constructs the handler provider.
func NewProvider(orch *orchestrator.Orchestrator, tasks queue.TaskQueue, log zerolog.Logger) *Provider {
	return &Provider{
		Session: NewSessionHandler(orch, log),
		Webhook: NewWebhookHandler(tasks, log),
	}
}
