package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/infrastructure/metrics"
	"chorus-server/experiment-api/internal/infrastructure/queue"
)

// Executor runs dequeued work items.
type Executor interface {
	// ExecuteTransport handles one raw inbound transport event.
	ExecuteTransport(ctx context.Context, platform, channelRef string, payload []byte) error

	// ExecuteWebSeed generates the seed message for a web session.
	ExecuteWebSeed(ctx context.Context, sessionID uint) error
}

// Worker processes background tasks from the queue.
type Worker struct {
	id          int
	queue       queue.TaskQueue
	executor    Executor
	taskTimeout time.Duration
	log         zerolog.Logger
	stopChan    chan struct{}
}

// NewWorker creates a new background worker.
func NewWorker(
	id int,
	taskQueue queue.TaskQueue,
	executor Executor,
	taskTimeout time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		id:          id,
		queue:       taskQueue,
		executor:    executor,
		taskTimeout: taskTimeout,
		log:         log.With().Int("worker_id", id).Str("component", "worker").Logger(),
		stopChan:    make(chan struct{}),
	}
}

// Start begins processing tasks from the queue.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("worker started")

	ticker := time.NewTicker(2 * time.Second) // Poll every 2 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped by context")
			return
		case <-w.stopChan:
			w.log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			w.processNextTask(ctx)
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	close(w.stopChan)
}

func (w *Worker) processNextTask(ctx context.Context) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to dequeue task")
		return
	}
	if task == nil {
		// No tasks available
		return
	}

	w.log.Info().
		Uint("task_id", task.ID).
		Str("kind", task.Kind).
		Str("platform", task.Platform).
		Msg("processing task")

	taskCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()

	if err := w.executeTask(taskCtx, task); err != nil {
		w.log.Error().Err(err).Uint("task_id", task.ID).Msg("task execution failed")
		metrics.RecordBackgroundJob(task.Kind, "failed")
		if markErr := w.queue.MarkFailed(ctx, task.ID, err); markErr != nil {
			w.log.Error().Err(markErr).Uint("task_id", task.ID).Msg("failed to mark task as failed")
		}
		return
	}

	metrics.RecordBackgroundJob(task.Kind, "completed")
	if err := w.queue.MarkCompleted(ctx, task.ID); err != nil {
		w.log.Error().Err(err).Uint("task_id", task.ID).Msg("failed to mark task completed")
		return
	}
	w.log.Info().Uint("task_id", task.ID).Msg("task completed")
}

func (w *Worker) executeTask(ctx context.Context, task *queue.Task) error {
	switch task.Kind {
	case queue.KindTransport:
		return w.executor.ExecuteTransport(ctx, task.Platform, task.ChannelRef, task.Payload)
	case queue.KindWebSeed:
		return w.executor.ExecuteWebSeed(ctx, task.SessionID)
	default:
		return fmt.Errorf("unknown task kind: %s", task.Kind)
	}
}
