package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chorus-server/experiment-api/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes for the experiment domain.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.Participant{},
		&entities.Experiment{},
		&entities.ExperimentChannel{},
		&entities.Chat{},
		&entities.ChatMessage{},
		&entities.ExperimentSession{},
		&entities.InboundMessage{},
	); err != nil {
		return err
	}

	log.Info().Msg("database schema up to date")
	return nil
}
