package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chorus-server/experiment-api/internal/infrastructure/database/entities"
)

// PostgresQueue implements TaskQueue over the inbound_messages table.
type PostgresQueue struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewPostgresQueue creates a new PostgreSQL-backed task queue.
func NewPostgresQueue(db *gorm.DB, log zerolog.Logger) *PostgresQueue {
	return &PostgresQueue{
		db:  db,
		log: log.With().Str("component", "postgres-queue").Logger(),
	}
}

var _ TaskQueue = (*PostgresQueue)(nil)

// Enqueue persists one work item.
func (q *PostgresQueue) Enqueue(ctx context.Context, task *Task) error {
	entity := entities.InboundMessage{
		Kind:       task.Kind,
		Platform:   task.Platform,
		ChannelRef: task.ChannelRef,
		Payload:    task.Payload,
		SessionID:  task.SessionID,
		Status:     entities.InboundStatusQueued,
		QueuedAt:   time.Now(),
	}
	if err := q.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	task.ID = entity.ID
	task.QueuedAt = entity.QueuedAt
	return nil
}

// Dequeue claims the next queued task. The FOR UPDATE SKIP LOCKED select
// and the status flip to in_progress run in one transaction, so the row
// lock is still held when the status changes and no second worker can
// claim the same task.
func (q *PostgresQueue) Dequeue(ctx context.Context) (*Task, error) {
	var entity entities.InboundMessage

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Raw("SELECT * FROM inbound_messages WHERE status = ? ORDER BY queued_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED",
				entities.InboundStatusQueued).
			Scan(&entity).Error; err != nil {
			return fmt.Errorf("select queued task: %w", err)
		}

		// No rows leaves entity zero-valued.
		if entity.ID == 0 {
			return nil
		}

		now := time.Now()
		return tx.
			Model(&entities.InboundMessage{}).
			Where("id = ?", entity.ID).
			Updates(map[string]interface{}{
				"status":     entities.InboundStatusProcessing,
				"started_at": now,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	if entity.ID == 0 {
		return nil, nil // No tasks available
	}

	return &Task{
		ID:         entity.ID,
		Kind:       entity.Kind,
		Platform:   entity.Platform,
		ChannelRef: entity.ChannelRef,
		Payload:    entity.Payload,
		SessionID:  entity.SessionID,
		QueuedAt:   entity.QueuedAt,
	}, nil
}

// MarkCompleted updates the work item status to completed.
func (q *PostgresQueue) MarkCompleted(ctx context.Context, taskID uint) error {
	now := time.Now()
	result := q.db.WithContext(ctx).
		Model(&entities.InboundMessage{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":       entities.InboundStatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("mark completed: %w", result.Error)
	}
	return nil
}

// MarkFailed updates the work item status to failed.
func (q *PostgresQueue) MarkFailed(ctx context.Context, taskID uint, taskErr error) error {
	now := time.Now()
	result := q.db.WithContext(ctx).
		Model(&entities.InboundMessage{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":     entities.InboundStatusFailed,
			"last_error": taskErr.Error(),
			"failed_at":  now,
			"updated_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("mark failed: %w", result.Error)
	}
	return nil
}

// GetQueueDepth returns the number of queued work items.
func (q *PostgresQueue) GetQueueDepth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).
		Model(&entities.InboundMessage{}).
		Where("status = ?", entities.InboundStatusQueued).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return count, nil
}
