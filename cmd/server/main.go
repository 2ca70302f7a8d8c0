package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/duragraph/duragraph/cmd/server/config"
	"github.com/duragraph/duragraph/internal/application/service"
	"github.com/duragraph/duragraph/internal/domain/workflow"
	"github.com/duragraph/duragraph/internal/infrastructure/cache"
	infra_exec "github.com/duragraph/duragraph/internal/infrastructure/execution"
	"github.com/duragraph/duragraph/internal/infrastructure/graph"
	"github.com/duragraph/duragraph/internal/infrastructure/http/handlers"
	"github.com/duragraph/duragraph/internal/infrastructure/http/middleware"
	"github.com/duragraph/duragraph/internal/infrastructure/llm"
	"github.com/duragraph/duragraph/internal/infrastructure/messaging"
	"github.com/duragraph/duragraph/internal/infrastructure/messaging/nats"
	"github.com/duragraph/duragraph/internal/infrastructure/monitoring"
	"github.com/duragraph/duragraph/internal/infrastructure/persistence/postgres"
	"github.com/duragraph/duragraph/internal/infrastructure/tools"
	"github.com/duragraph/duragraph/internal/infrastructure/tracing"
	"github.com/duragraph/duragraph/internal/pkg/eventbus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	fmt.Println("🚀 DuraGraph Server")
	fmt.Printf("📍 Server: %s\n", cfg.ServerAddr())
	fmt.Printf("🗄️  Database: %s:%d/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	fmt.Printf("📨 NATS: %s\n", cfg.NATS.URL)

	ctx := context.Background()

	dbConfig := postgres.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
	}
	pool, err := postgres.NewPool(ctx, dbConfig)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer postgres.Close(pool)

	fmt.Println("✅ Database connected")

	if err := postgres.Migrate(dbConfig.URL(), cfg.Database.MigrationsDir); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	fmt.Println("✅ Database migrations applied")

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.ServiceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			log.Fatalf("failed to initialize tracing: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Printf("tracing shutdown error: %v", err)
			}
		}()
		fmt.Println("✅ Tracing enabled")
	}

	eventBus := eventbus.New()

	eventStore := postgres.NewEventStore(pool)
	outbox := postgres.NewOutbox(pool)

	runRepo := postgres.NewRunRepository(pool, eventStore)
	graphRepo := postgres.NewGraphRepository(pool, eventStore)

	logger := watermill.NewStdLogger(false, false)
	publisher, err := nats.NewPublisher(cfg.NATS.URL, logger)
	if err != nil {
		log.Fatalf("failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	fmt.Println("✅ NATS publisher connected")

	subscriber, err := nats.NewSubscriber(cfg.NATS.URL, "duragraph-server", logger)
	if err != nil {
		log.Fatalf("failed to create NATS subscriber: %v", err)
	}
	defer subscriber.Close()

	fmt.Println("✅ NATS subscriber connected")

	outboxRelay := messaging.NewOutboxRelay(outbox, publisher, 1*time.Second, 10)
	go func() {
		if err := outboxRelay.Start(ctx); err != nil {
			log.Printf("outbox relay error: %v", err)
		}
	}()

	fmt.Println("✅ Outbox relay worker started")

	cleanupWorker := messaging.NewCleanupWorker(outbox, 1*time.Hour, 7)
	go func() {
		if err := cleanupWorker.Start(ctx); err != nil {
			log.Printf("cleanup worker error: %v", err)
		}
	}()

	fmt.Println("✅ Cleanup worker started")

	// Bridge the response pipeline's events onto NATS so external
	// collaborators (the subscriber above, or a separate process) can
	// observe a run's progress without holding the HTTP connection open.
	eventBridge := messaging.NewEventBusBridge(eventBus, publisher, "duragraph.runs")
	go eventBridge.Start(ctx)

	metrics := monitoring.NewMetrics("duragraph")

	toolRegistry := tools.NewRegistry()
	if err := tools.RegisterBuiltinTools(toolRegistry); err != nil {
		log.Fatalf("failed to register built-in tools: %v", err)
	}

	fmt.Println("✅ Tool registry initialized")

	llmClients := map[string]llm.Client{
		"openai":    llm.NewOpenAIClient(os.Getenv("OPENAI_API_KEY")),
		"anthropic": llm.NewAnthropicClient(os.Getenv("ANTHROPIC_API_KEY")),
	}

	nodeRegistry := infra_exec.BuildRegistry(llmClients, toolRegistry, &http.Client{Timeout: 60 * time.Second})

	graphEngine := graph.NewEngine(nodeRegistry, graph.Limits{
		MaxExecutionSteps: cfg.Engine.MaxExecutionSteps,
		MaxExecutionTime:  cfg.ExecutionTime(),
		MaxWorkers:        cfg.Engine.MaxWorkers,
		MaxSubmitCount:    cfg.Engine.MaxSubmitCount,
	})

	if cfg.Tracing.Enabled {
		graphEngine = graphEngine.WithTelemetry(graph.NewTelemetry("duragraph/graph-engine", metrics))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		graphEngine = graphEngine.WithCarveCache(graph.NewCarveCache(redisClient, 10*time.Minute))
		fmt.Println("✅ Carve cache enabled (redis)")
	}

	if poolCleanup, err := graphEngine.StartPoolCleanup("@hourly", cfg.ExecutionTime()*2); err != nil {
		log.Printf("pool cleanup not started: %v", err)
	} else {
		defer poolCleanup.Stop()
	}

	var graphRepository workflow.GraphRepository = graphRepo
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, "", 0)
		if err != nil {
			log.Printf("graph cache not started: %v", err)
		} else {
			graphRepository = cache.NewCachedGraphRepository(graphRepo, redisCache, 15*time.Minute)
			fmt.Println("✅ Graph repository cache enabled (redis)")
		}
	}

	runService := service.NewRunService(runRepo, graphRepository, graphEngine, eventBus)

	runHandler := handlers.NewRunHandler(runService)
	systemHandler := handlers.NewSystemHandler("2.0.0")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler()

	e.Use(middleware.Logger())
	e.Use(middleware.Metrics(metrics))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if cfg.Tracing.Enabled {
		e.Use(otelecho.Middleware(cfg.Tracing.ServiceName))
	}

	if cfg.Redis.Enabled && redisClient != nil {
		e.Use(middleware.RedisRateLimit(redisClient, 60, time.Minute))
	} else {
		e.Use(middleware.SimpleRateLimit(20, 40))
	}

	authEnabled := os.Getenv("AUTH_ENABLED") == "true"
	if authEnabled {
		jwtSecret := os.Getenv("JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "default-secret-change-in-production"
		}
		e.Use(middleware.OptionalAuth(jwtSecret))
		fmt.Println("✅ Authentication enabled")
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "healthy",
			"version": "2.0.0",
		})
	})

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/ok", systemHandler.Ok)
	e.GET("/info", systemHandler.Info)

	api := e.Group("/v1")
	api.POST("/workflows/runs", runHandler.CreateRun)

	_ = subscriber // retained for out-of-process consumers of the NATS bridge

	go func() {
		fmt.Printf("🌐 Server listening on %s\n", cfg.ServerAddr())
		if err := e.Start(cfg.ServerAddr()); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n🛑 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	outboxRelay.Stop()
	cleanupWorker.Stop()

	fmt.Println("👋 Shutdown complete")
}
