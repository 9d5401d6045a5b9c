//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"chorus-server/experiment-api/internal/config"
	"chorus-server/experiment-api/internal/domain/chat"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/llm"
	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/domain/tool"
	"chorus-server/experiment-api/internal/infrastructure/database"
	"chorus-server/experiment-api/internal/infrastructure/events"
	"chorus-server/experiment-api/internal/infrastructure/llmprovider"
	"chorus-server/experiment-api/internal/infrastructure/logger"
	"chorus-server/experiment-api/internal/infrastructure/queue"
	chatrepo "chorus-server/experiment-api/internal/infrastructure/repository/chat"
	experimentrepo "chorus-server/experiment-api/internal/infrastructure/repository/experiment"
	sessionrepo "chorus-server/experiment-api/internal/infrastructure/repository/session"
	"chorus-server/experiment-api/internal/infrastructure/scheduler"
	"chorus-server/experiment-api/internal/infrastructure/speech"
	"chorus-server/experiment-api/internal/interfaces/httpserver"
)

var storeSet = wire.NewSet(
	sessionrepo.NewRepository,
	wire.Bind(new(session.Store), new(*sessionrepo.Repository)),
	chatrepo.NewRepository,
	wire.Bind(new(chat.Store), new(*chatrepo.Repository)),
	experimentrepo.NewRepository,
	wire.Bind(new(experiment.Repository), new(*experimentrepo.Repository)),
)

var providerSet = wire.NewSet(
	newLLMProvider,
	wire.Bind(new(llm.Provider), new(*llmprovider.Client)),
	newAssistantProvider,
	wire.Bind(new(llm.AssistantProvider), new(*llmprovider.AssistantClient)),
	newSpeechProvider,
	wire.Bind(new(llm.SpeechProvider), new(*speech.Client)),
	newSchedulerClient,
	wire.Bind(new(tool.Scheduler), new(*scheduler.Client)),
	newToolRegistry,
	newNotifier,
	wire.Bind(new(orchestrator.Notifier), new(*events.HTTPNotifier)),
	queue.NewPostgresQueue,
	wire.Bind(new(queue.TaskQueue), new(*queue.PostgresQueue)),
	queue.NewSeedEnqueuer,
	wire.Bind(new(orchestrator.SeedDispatcher), new(*queue.SeedEnqueuer)),
)

// BuildApplication demonstrates how to assemble the experiment service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		storeSet,
		providerSet,
		newRunnableFactory,
		orchestrator.New,
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newLLMProvider(cfg *config.Config) *llmprovider.Client {
	return llmprovider.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey)
}

func newAssistantProvider(cfg *config.Config) *llmprovider.AssistantClient {
	return llmprovider.NewAssistantClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.AssistantPollDelay)
}

func newSpeechProvider(cfg *config.Config, log zerolog.Logger) *speech.Client {
	return speech.NewClient(speechBaseURL(cfg), speechAPIKey(cfg), log)
}

func newSchedulerClient(cfg *config.Config) *scheduler.Client {
	return scheduler.NewClient(cfg.SchedulerURL, cfg.SchedulerKey)
}

func newToolRegistry(schedulerClient tool.Scheduler) *tool.Registry {
	return tool.NewRegistry(
		tool.NewOneOffReminderTool(schedulerClient),
		tool.NewRecurringReminderTool(schedulerClient),
		tool.NewScheduleUpdateTool(schedulerClient),
	)
}

func newNotifier(cfg *config.Config, log zerolog.Logger) *events.HTTPNotifier {
	return events.NewHTTPNotifier(cfg.EventWebhookURL, log)
}

func newRunnableFactory(
	cfg *config.Config,
	provider llm.Provider,
	assistant llm.AssistantProvider,
	chats chat.Store,
	tools *tool.Registry,
	log zerolog.Logger,
) orchestrator.RunnableFactory {
	deps := runnable.Deps{
		Provider:            provider,
		Assistant:           assistant,
		Chats:               chats,
		Tools:               tools,
		Log:                 log,
		CancelCheckInterval: cfg.CancelCheckInterval,
		AssistantPollDelay:  cfg.AssistantPollDelay,
		AgentTimeout:        cfg.AgentTimeout,
		MaxToolDepth:        cfg.MaxToolDepth,
	}
	return func(
		exp *experiment.Experiment,
		sess *session.Session,
		participant *experiment.Participant,
		platform experiment.Platform,
	) runnable.Runnable {
		return runnable.New(deps, exp, sess, participant, platform)
	}
}
