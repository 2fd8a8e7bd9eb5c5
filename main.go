package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreachly/config"
	controller "outreachly/controllers"
	"outreachly/engine"
	"outreachly/routes"
	"outreachly/store"
	"outreachly/utils"
	"outreachly/worker"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
)

func main() {
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			log.Fatalf("Failed to initialize sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Stores
	executionStore := store.NewExecutionStore(config.DB)
	sequenceStore := store.NewSequenceStore(config.DB, executionStore)
	prospectStore := store.NewProspectStore(config.DB)
	engagementStore := store.NewEngagementStore(config.DB)

	// The execution lock is distributed when redis is configured and
	// in-process otherwise.
	var locker engine.Locker = engine.NewLocalLocker()
	if config.AppConfig.Redis.Enabled {
		locker = engine.NewRedisLocker(redis.NewClient(&redis.Options{
			Addr:     config.AppConfig.Redis.Address,
			Password: config.AppConfig.Redis.Password,
			DB:       config.AppConfig.Redis.DB,
		}))
	}

	generator := engine.NewGenerator(config.AppConfig.Generator, utils.NewLogger("generator"))
	sender := engine.NewSMTPSender(config.AppConfig.SMTP, config.AppConfig.TrackingBaseURL, utils.NewLogger("sender"))

	executor := engine.NewExecutor(
		executionStore,
		sequenceStore,
		prospectStore,
		engagementStore,
		engagementStore,
		generator,
		sender,
		locker,
		config.AppConfig.Engine,
		utils.NewLogger("executor"),
	)
	orchestrator := engine.NewOrchestrator(executionStore, sequenceStore, prospectStore, utils.NewLogger("orchestrator"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sequenceWorker := worker.NewSequenceWorker(executor, config.AppConfig.Engine, utils.NewLogger("sequence-worker"))
	go sequenceWorker.Start(ctx)

	if config.AppConfig.IMAP.Enabled {
		replyWorker := worker.NewReplyWorker(prospectStore, engagementStore, executionStore,
			config.AppConfig.IMAP, config.AppConfig.ReplyPollInterval, utils.NewLogger("reply-worker"))
		go replyWorker.Start(ctx)
	}

	app := fiber.New()

	routes.SetupRoutes(app, routes.Controllers{
		Sequences:  controller.NewSequenceController(sequenceStore, utils.NewLogger("sequences")),
		Executions: controller.NewExecutionController(executionStore, orchestrator, executor, utils.NewLogger("executions")),
		Prospects:  controller.NewProspectController(prospectStore, utils.NewLogger("prospects")),
		Engagement: controller.NewEngagementController(engagementStore, executionStore, utils.NewLogger("engagement")),
		Progress:   controller.NewProgressController(executionStore, utils.NewLogger("progress")),
	})

	// Shut the workers down before the listener on SIGINT/SIGTERM.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
		_ = app.Shutdown()
	}()

	log.Printf("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
