package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"chorus-server/experiment-api/internal/config"
	"chorus-server/experiment-api/internal/domain/experiment"
	"chorus-server/experiment-api/internal/domain/orchestrator"
	"chorus-server/experiment-api/internal/domain/runnable"
	"chorus-server/experiment-api/internal/domain/session"
	"chorus-server/experiment-api/internal/domain/tool"
	"chorus-server/experiment-api/internal/infrastructure/database"
	"chorus-server/experiment-api/internal/infrastructure/events"
	"chorus-server/experiment-api/internal/infrastructure/llmprovider"
	"chorus-server/experiment-api/internal/infrastructure/logger"
	"chorus-server/experiment-api/internal/infrastructure/messaging"
	"chorus-server/experiment-api/internal/infrastructure/observability"
	"chorus-server/experiment-api/internal/infrastructure/queue"
	chatrepo "chorus-server/experiment-api/internal/infrastructure/repository/chat"
	experimentrepo "chorus-server/experiment-api/internal/infrastructure/repository/experiment"
	sessionrepo "chorus-server/experiment-api/internal/infrastructure/repository/session"
	"chorus-server/experiment-api/internal/infrastructure/scheduler"
	"chorus-server/experiment-api/internal/infrastructure/speech"
	"chorus-server/experiment-api/internal/interfaces/httpserver"
	"chorus-server/experiment-api/internal/worker"
)

// @title Experiment API
// @version 1.0
// @description Multi-tenant conversational experiment service: channel adapters, consent gating, and LLM generation pipelines.
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.EnableTracing {
		shutdownTelemetry, err := observability.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize observability")
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := shutdownTelemetry(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("shutdown telemetry")
			}
		}()
	}

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	sessionStore := sessionrepo.NewRepository(db)
	chatStore := chatrepo.NewRepository(db)
	experimentRepository := experimentrepo.NewRepository(db)

	llmClient := llmprovider.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey)
	assistantClient := llmprovider.NewAssistantClient(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.AssistantPollDelay)
	speechClient := speech.NewClient(speechBaseURL(cfg), speechAPIKey(cfg), log)
	schedulerClient := scheduler.NewClient(cfg.SchedulerURL, cfg.SchedulerKey)

	toolRegistry := tool.NewRegistry(
		tool.NewOneOffReminderTool(schedulerClient),
		tool.NewRecurringReminderTool(schedulerClient),
		tool.NewScheduleUpdateTool(schedulerClient),
	)

	runnableDeps := runnable.Deps{
		Provider:            llmClient,
		Assistant:           assistantClient,
		Chats:               chatStore,
		Tools:               toolRegistry,
		Log:                 log,
		CancelCheckInterval: cfg.CancelCheckInterval,
		AssistantPollDelay:  cfg.AssistantPollDelay,
		AgentTimeout:        cfg.AgentTimeout,
		MaxToolDepth:        cfg.MaxToolDepth,
	}
	runnableFactory := func(
		exp *experiment.Experiment,
		sess *session.Session,
		participant *experiment.Participant,
		platform experiment.Platform,
	) runnable.Runnable {
		return runnable.New(runnableDeps, exp, sess, participant, platform)
	}

	notifier := events.NewHTTPNotifier(cfg.EventWebhookURL, log)

	taskQueue := queue.NewPostgresQueue(db, log)
	seedEnqueuer := queue.NewSeedEnqueuer(taskQueue)

	orch := orchestrator.New(
		sessionStore,
		chatStore,
		experimentRepository,
		speechClient,
		runnableFactory,
		notifier,
		seedEnqueuer,
		log,
	)

	dispatcher := orchestrator.NewDispatcher(
		orch,
		experimentRepository,
		messaging.NewTelegramClient(cfg.TelegramAPIURL),
		messaging.NewTwilioClient(cfg.TwilioAPIURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken),
		messaging.NewFacebookClient(cfg.FacebookGraphURL),
		messaging.NewSlackClient(cfg.SlackAPIURL),
		log,
	)

	executor := worker.NewOrchestratorExecutor(dispatcher, orch)
	workerPool := worker.NewPool(
		taskQueue,
		executor,
		worker.Config{
			WorkerCount: cfg.WorkerCount,
			TaskTimeout: cfg.TaskTimeout,
		},
		log,
	)

	if err := workerPool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start worker pool")
	}
	defer func() {
		log.Info().Msg("stopping worker pool")
		workerPool.Stop()
	}()

	httpServer := httpserver.New(cfg, log, orch, taskQueue)
	app := NewApplication(httpServer, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// speechBaseURL falls back to the main LLM endpoint when no dedicated
// speech service is configured.
func speechBaseURL(cfg *config.Config) string {
	if cfg.SpeechAPIURL != "" {
		return cfg.SpeechAPIURL
	}
	return cfg.LLMAPIURL
}

func speechAPIKey(cfg *config.Config) string {
	if cfg.SpeechAPIURL != "" {
		return cfg.SpeechAPIKey
	}
	return cfg.LLMAPIKey
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
