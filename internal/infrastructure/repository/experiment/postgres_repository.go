package experiment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	domain "chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/infrastructure/database/entities"
)

// Repository reads experiment configuration and participant records.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an experiment repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ domain.Repository = (*Repository)(nil)

// GetByID loads an experiment by internal id.
func (r *Repository) GetByID(ctx context.Context, id uint) (*domain.Experiment, error) {
	var entity entities.Experiment
	if err := r.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch experiment: %w", err)
	}
	return entity.EtoD(), nil
}

// GetByPublicID loads an experiment by its public id.
func (r *Repository) GetByPublicID(ctx context.Context, publicID string) (*domain.Experiment, error) {
	var entity entities.Experiment
	err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch experiment: %w", err)
	}
	return entity.EtoD(), nil
}

// GetChannel loads an experiment channel by internal id.
func (r *Repository) GetChannel(ctx context.Context, id uint) (*domain.Channel, error) {
	var entity entities.ExperimentChannel
	if err := r.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch experiment channel: %w", err)
	}
	return entity.EtoD(), nil
}

// FindChannelByExtra locates a channel by platform and one ExtraData key.
func (r *Repository) FindChannelByExtra(ctx context.Context, platform domain.Platform, key, value string) (*domain.Channel, error) {
	var entity entities.ExperimentChannel
	err := r.db.WithContext(ctx).
		Where("platform = ?", string(platform)).
		Where("extra_data ->> ? = ?", key, value).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find experiment channel: %w", err)
	}
	return entity.EtoD(), nil
}

// FindParticipant looks up a participant by team and identifier.
func (r *Repository) FindParticipant(ctx context.Context, teamID uint, identifier string) (*domain.Participant, error) {
	var entity entities.Participant
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND identifier = ?", teamID, identifier).
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return entity.EtoD(), nil
}

// GetParticipant loads a participant by internal id.
func (r *Repository) GetParticipant(ctx context.Context, id uint) (*domain.Participant, error) {
	var entity entities.Participant
	if err := r.db.WithContext(ctx).First(&entity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("fetch participant: %w", err)
	}
	return entity.EtoD(), nil
}

// SaveParticipantMemory merges key-value data into participant memory.
func (r *Repository) SaveParticipantMemory(ctx context.Context, participantID uint, memory map[string]string) error {
	patch, err := entities.JSONMap(memory).Value()
	if err != nil {
		return fmt.Errorf("encode memory patch: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&entities.Participant{}).
		Where("id = ?", participantID).
		Update("memory", gorm.Expr("COALESCE(memory, '{}'::jsonb) || ?::jsonb", patch))
	if result.Error != nil {
		return fmt.Errorf("save participant memory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
