package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/infrastructure/database/entities"
)

// Repository persists sessions, chats and participants.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a session repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Store = (*Repository)(nil)

// Start creates the session and its chat, finding or creating the
// participant inside one transaction. The unique (team, identifier)
// index makes concurrent first-contact creation safe: the loser of the
// race retries the lookup.
func (r *Repository) Start(ctx context.Context, params domain.StartParams) (*domain.Session, error) {
	var created entities.ExperimentSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participant, err := findOrCreateParticipant(tx, params)
		if err != nil {
			return err
		}

		chatEntity := entities.Chat{TeamID: params.TeamID, Metadata: entities.JSONMap{}}
		if err := tx.Create(&chatEntity).Error; err != nil {
			return fmt.Errorf("create chat: %w", err)
		}

		created = entities.ExperimentSession{
			PublicID:       "sess_" + uuid.NewString(),
			TeamID:         params.TeamID,
			ExperimentID:   params.ExperimentID,
			ParticipantID:  participant.ID,
			ChannelID:      params.ChannelID,
			ChatID:         chatEntity.ID,
			Status:         string(params.Status),
			ExternalChatID: params.ExternalChatID,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	return created.EtoD(), nil
}

func findOrCreateParticipant(tx *gorm.DB, params domain.StartParams) (*entities.Participant, error) {
	var participant entities.Participant
	err := tx.Where("team_id = ? AND identifier = ?", params.TeamID, params.ParticipantIdentifier).
		First(&participant).Error
	if err == nil {
		if params.ParticipantUserID != "" && participant.UserID != params.ParticipantUserID {
			if err := tx.Model(&participant).Update("user_id", params.ParticipantUserID).Error; err != nil {
				return nil, fmt.Errorf("link participant user: %w", err)
			}
		}
		return &participant, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find participant: %w", err)
	}

	participant = entities.Participant{
		TeamID:     params.TeamID,
		Identifier: params.ParticipantIdentifier,
		UserID:     params.ParticipantUserID,
		Memory:     entities.JSONMap{},
	}
	if err := tx.Create(&participant).Error; err != nil {
		// A concurrent first-contact message may have won the race on
		// the unique (team, identifier) index.
		var existing entities.Participant
		if findErr := tx.Where("team_id = ? AND identifier = ?", params.TeamID, params.ParticipantIdentifier).
			First(&existing).Error; findErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return &participant, nil
}

// FindCurrent returns the latest non-ended session for the experiment and
// participant identifier.
func (r *Repository) FindCurrent(ctx context.Context, experimentID uint, identifier string) (*domain.Session, error) {
	var entity entities.ExperimentSession
	err := r.db.WithContext(ctx).
		Joins("JOIN participants ON participants.id = experiment_sessions.participant_id").
		Where("experiment_sessions.experiment_id = ?", experimentID).
		Where("participants.identifier = ?", identifier).
		Where("experiment_sessions.ended_at IS NULL").
		Order("experiment_sessions.created_at DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find current session: %w", err)
	}
	return entity.EtoD(), nil
}

// GetByID loads a session by internal id.
func (r *Repository) GetByID(ctx context.Context, sessionID uint) (*domain.Session, error) {
	var entity entities.ExperimentSession
	if err := r.db.WithContext(ctx).First(&entity, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return entity.EtoD(), nil
}

// GetByPublicID loads a session by its public id.
func (r *Repository) GetByPublicID(ctx context.Context, publicID string) (*domain.Session, error) {
	var entity entities.ExperimentSession
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	return entity.EtoD(), nil
}

// UpdateStatus sets the session status.
func (r *Repository) UpdateStatus(ctx context.Context, sessionID uint, status domain.Status) error {
	result := r.db.WithContext(ctx).
		Model(&entities.ExperimentSession{}).
		Where("id = ?", sessionID).
		Update("status", string(status))
	if result.Error != nil {
		return fmt.Errorf("update session status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// End marks the session terminated now.
func (r *Repository) End(ctx context.Context, sessionID uint) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&entities.ExperimentSession{}).
		Where("id = ?", sessionID).
		Where("ended_at IS NULL").
		Update("ended_at", now)
	if result.Error != nil {
		return fmt.Errorf("end session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateExternalChatID records the transport conversation id.
func (r *Repository) UpdateExternalChatID(ctx context.Context, sessionID uint, externalChatID string) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.ExperimentSession{}).
		Where("id = ?", sessionID).
		Update("external_chat_id", externalChatID).Error; err != nil {
		return fmt.Errorf("update external chat id: %w", err)
	}
	return nil
}

// ResetPingCount clears the no-activity ping counter.
func (r *Repository) ResetPingCount(ctx context.Context, sessionID uint) error {
	if err := r.db.WithContext(ctx).
		Model(&entities.ExperimentSession{}).
		Where("id = ?", sessionID).
		Update("no_activity_pings", 0).Error; err != nil {
		return fmt.Errorf("reset ping count: %w", err)
	}
	return nil
}
