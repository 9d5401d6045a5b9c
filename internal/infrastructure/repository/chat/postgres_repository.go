package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/infrastructure/database/entities"
)

// Repository persists chats and chat messages.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a chat repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Store = (*Repository)(nil)

// Create opens a new empty chat.
func (r *Repository) Create(ctx context.Context, teamID uint) (*domain.Chat, error) {
	entity := entities.Chat{TeamID: teamID, Metadata: entities.JSONMap{}}
	if err := r.db.WithContext(ctx).Create(&entity).Error; err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return entity.EtoD(), nil
}

// Get loads a chat with its metadata.
func (r *Repository) Get(ctx context.Context, chatID uint) (*domain.Chat, error) {
	var entity entities.Chat
	if err := r.db.WithContext(ctx).First(&entity, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat %d not found", chatID)
		}
		return nil, fmt.Errorf("fetch chat: %w", err)
	}
	return entity.EtoD(), nil
}

// AppendMessage appends one entry to the chat's log.
func (r *Repository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	entity := entities.NewSchemaChatMessage(msg)
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	msg.ID = entity.ID
	msg.CreatedAt = entity.CreatedAt
	return nil
}

// History returns the full ordered message log.
func (r *Repository) History(ctx context.Context, chatID uint) ([]domain.Message, error) {
	var rows []entities.ChatMessage
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	messages := make([]domain.Message, len(rows))
	for i, row := range rows {
		messages[i] = *row.EtoD()
	}
	return messages, nil
}

// CountByType returns the number of messages of the given type.
func (r *Repository) CountByType(ctx context.Context, chatID uint, msgType domain.MessageType) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&entities.ChatMessage{}).
		Where("chat_id = ?", chatID).
		Where("type = ?", string(msgType)).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chat messages: %w", err)
	}
	return count, nil
}

// GetMetadataValue reads one metadata key; empty string when absent.
func (r *Repository) GetMetadataValue(ctx context.Context, chatID uint, key string) (string, error) {
	var entity entities.Chat
	if err := r.db.WithContext(ctx).Select("metadata").First(&entity, chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("chat %d not found", chatID)
		}
		return "", fmt.Errorf("fetch chat metadata: %w", err)
	}
	return entity.Metadata[key], nil
}

// SetMetadataValue writes one metadata key with a JSONB merge so
// concurrent writers of different keys do not clobber each other.
func (r *Repository) SetMetadataValue(ctx context.Context, chatID uint, key, value string) error {
	patch, err := (entities.JSONMap{key: value}).Value()
	if err != nil {
		return fmt.Errorf("encode metadata patch: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&entities.Chat{}).
		Where("id = ?", chatID).
		Update("metadata", gorm.Expr("COALESCE(metadata, '{}'::jsonb) || ?::jsonb", patch))
	if result.Error != nil {
		return fmt.Errorf("update chat metadata: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("chat %d not found", chatID)
	}
	return nil
}
