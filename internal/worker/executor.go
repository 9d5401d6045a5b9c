package worker

import (
	"context"
	"fmt"

	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/orchestrator"
)

// OrchestratorExecutor routes queued work to the conversation
// orchestrator.
type OrchestratorExecutor struct {
	dispatcher *orchestrator.Dispatcher
	orch       *orchestrator.Orchestrator
}

// NewOrchestratorExecutor wires the executor.
func NewOrchestratorExecutor(dispatcher *orchestrator.Dispatcher, orch *orchestrator.Orchestrator) *OrchestratorExecutor {
	return &OrchestratorExecutor{dispatcher: dispatcher, orch: orch}
}

var _ Executor = (*OrchestratorExecutor)(nil)

// ExecuteTransport handles one raw inbound transport event.
func (e *OrchestratorExecutor) ExecuteTransport(ctx context.Context, platform, channelRef string, payload []byte) error {
	if platform == "" {
		return fmt.Errorf("transport task has no platform")
	}
	return e.dispatcher.Dispatch(ctx, experiment.Platform(platform), channelRef, payload)
}

// ExecuteWebSeed generates the seed message for a web session.
func (e *OrchestratorExecutor) ExecuteWebSeed(ctx context.Context, sessionID uint) error {
	return e.orch.GenerateSeedMessage(ctx, sessionID)
}
