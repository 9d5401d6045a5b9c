package queue

import (
	"context"
	"fmt"
)

// SeedEnqueuer queues seed-message generation so web session creation
// returns without waiting on the LLM.
type SeedEnqueuer struct {
	tasks TaskQueue
}

// NewSeedEnqueuer creates the enqueuer.
func NewSeedEnqueuer(tasks TaskQueue) *SeedEnqueuer {
	return &SeedEnqueuer{tasks: tasks}
}

// EnqueueSeedMessage queues one seed generation task for the session.
func (e *SeedEnqueuer) EnqueueSeedMessage(ctx context.Context, sessionID uint) error {
	if err := e.tasks.Enqueue(ctx, &Task{
		Kind:      KindWebSeed,
		SessionID: sessionID,
	}); err != nil {
		return fmt.Errorf("enqueue seed task: %w", err)
	}
	return nil
}
