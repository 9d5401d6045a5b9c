package queue

import (
	"context"
	"time"
)

// Task kinds.
const (
	KindTransport = "transport"
	KindWebSeed   = "web_seed"
)

// Task represents one queued unit of work: an inbound transport event or
// a web seed-message generation.
type Task struct {
	ID         uint
	Kind       string
	Platform   string
	ChannelRef string
	Payload    []byte
	SessionID  uint
	QueuedAt   time.Time
}

// TaskQueue defines the interface for task queue operations.
type TaskQueue interface {
	// Enqueue adds a task to the queue
	Enqueue(ctx context.Context, task *Task) error

	// Dequeue atomically claims the next available task, flipping it to
	// in_progress under the row lock of SELECT FOR UPDATE SKIP LOCKED
	Dequeue(ctx context.Context) (*Task, error)

	// MarkCompleted updates task status to completed
	MarkCompleted(ctx context.Context, taskID uint) error

	// MarkFailed updates task status to failed
	MarkFailed(ctx context.Context, taskID uint, err error) error

	// GetQueueDepth returns the number of queued tasks
	GetQueueDepth(ctx context.Context) (int64, error)
}
