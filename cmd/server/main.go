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

	"github.com/imagegenio/orchestrator/internal/config"
	"github.com/imagegenio/orchestrator/internal/eventbus"
	"github.com/imagegenio/orchestrator/internal/generator"
	"github.com/imagegenio/orchestrator/internal/infrastructure/api/rest"
	"github.com/imagegenio/orchestrator/internal/infrastructure/logger"
	"github.com/imagegenio/orchestrator/internal/infrastructure/storage"
	"github.com/imagegenio/orchestrator/internal/infrastructure/tracing"
	"github.com/imagegenio/orchestrator/internal/judge"
	"github.com/imagegenio/orchestrator/internal/objectstore"
	"github.com/imagegenio/orchestrator/internal/optimizer"
	"github.com/imagegenio/orchestrator/internal/orchestrator"
	"github.com/imagegenio/orchestrator/internal/queue"
	"github.com/imagegenio/orchestrator/internal/rag"
	openai "github.com/sashabaranov/go-openai"
)

// dbPinger adapts storage.Ping to rest.Pinger.
type dbPinger struct{ db interface{ PingContext(context.Context) error } }

func (p dbPinger) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("starting orchestrator server", "port", cfg.Server.Port)

	tracingProvider, err := tracing.NewProvider(context.Background(), tracing.Config{
		Enabled:     os.Getenv("OTEL_ENABLED") == "true",
		ServiceName: "orchestrator",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:    true,
		SampleRate:  1.0,
	})
	if err != nil {
		appLogger.Warn("tracing disabled", "error", err)
	}
	if tracingProvider != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracingProvider.Shutdown(ctx)
		}()
	}

	dbConfig := &storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Logging.Level == "debug",
	}
	db, err := storage.NewDB(dbConfig)
	if err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)
	appLogger.Info("database connected", "max_conns", cfg.Database.MaxConnections)

	requestRepo := storage.NewRequestRepository(db)
	imageRepo := storage.NewImageRepository(db)
	agentRepo := storage.NewAgentRepository(db)
	optimizerRepo := storage.NewOptimizerRepository(db)
	jobRepo := storage.NewJobRepository(db)

	var objects objectstore.Store
	switch cfg.ObjectStore.Backend {
	case "filesystem":
		fsStore, err := objectstore.NewFilesystem(cfg.ObjectStore.RootDir)
		if err != nil {
			appLogger.Error("failed to initialize filesystem object store", "error", err)
			os.Exit(1)
		}
		objects = fsStore
	default:
		objects = objectstore.NewMemory()
	}
	appLogger.Info("object store initialized", "backend", cfg.ObjectStore.Backend)

	bus := eventbus.New(cfg.EventBus.SubjectBufferSize, func(requestID string) interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := requestRepo.FindByID(ctx, requestID)
		if err != nil {
			return nil
		}
		images, err := imageRepo.FindByRequestID(ctx, requestID)
		if err != nil {
			images = nil
		}
		return map[string]interface{}{"request": req, "images": images}
	})

	var gen generator.Generator
	var embedder orchestrator.Embedder
	var chatClient judge.ChatClient
	var optChatClient optimizer.ChatClient
	if cfg.Models.MockGenerator {
		gen = generator.NewMock()
	} else {
		gen = generator.NewOpenAI(cfg.Models.OpenAIAPIKey, cfg.Models.ImageGenModel)
	}
	if cfg.Models.MockJudge {
		embedder = mockEmbedder{}
	} else {
		embedder = rag.NewOpenAIEmbedder(cfg.Models.OpenAIAPIKey, cfg.Models.EmbeddingModel)
	}
	openaiClient := openai.NewClient(cfg.Models.OpenAIAPIKey)
	chatClient = openaiClient
	optChatClient = openaiClient

	resolver := judge.ConfigModelResolver{ProModel: cfg.Models.JudgeModelPro, FlashModel: cfg.Models.JudgeModelFlash}
	evaluator := judge.NewEvaluator(chatClient, resolver, embedder)
	promptOptimizer := optimizer.NewOptimizer(optChatClient, optimizerRepo)

	cancellation := queue.NewCancellationRegistry()

	orch := orchestrator.NewOrchestrator(
		requestRepo,
		imageRepo,
		agentRepo,
		objects,
		gen,
		evaluator,
		promptOptimizer,
		embedder,
		bus,
		cancellation,
		appLogger,
		cfg.Loop.DefaultTimeBudget,
	)

	pool := queue.NewPool(jobRepo, orch, cancellation, appLogger, cfg.Queue.Workers, cfg.Queue.PollInterval, cfg.Queue.IdleBackoff)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	pool.Start(ctx)
	appLogger.Info("worker pool started", "workers", cfg.Queue.Workers)

	handlers := rest.NewHandlers(requestRepo, pool, bus, appLogger)
	auth := rest.NewAuthMiddleware(cfg.Server.APIKeys)
	router := rest.NewRouter(handlers, auth, appLogger, dbPinger{db: db}, cfg.Logging.Level == "debug")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		appLogger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		pool.Stop()
		appLogger.Info("worker pool stopped")

		if err := server.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			_ = server.Close()
		}
		appLogger.Info("server stopped")
	}
}

// mockEmbedder returns deterministic zero vectors, used alongside the mock
// judge/generator backends for local development without API keys.
type mockEmbedder struct{}

func (mockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0, 0, 0, 0}
	}
	return out, nil
}
