package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burrow-ai/burrow/internal/api/handlers"
	"github.com/burrow-ai/burrow/internal/config"
	"github.com/burrow-ai/burrow/internal/counter"
	"github.com/burrow-ai/burrow/internal/database"
	"github.com/burrow-ai/burrow/internal/domain"
	"github.com/burrow-ai/burrow/internal/embed"
	"github.com/burrow-ai/burrow/internal/ingest"
	"github.com/burrow-ai/burrow/internal/loader"
	"github.com/burrow-ai/burrow/internal/openai"
	"github.com/burrow-ai/burrow/internal/repository"
	"github.com/burrow-ai/burrow/internal/server"
	"github.com/burrow-ai/burrow/internal/service"
	"github.com/burrow-ai/burrow/internal/storage"
	"github.com/burrow-ai/burrow/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the burrow API server and ingestion engine on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("BURROW_OPENAI_API_KEY is required: ingestion and retrieval need an embedding provider")
	}

	// Initialize Sentry with tracing if a DSN is set
	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	knowledgeRepo := repository.NewKnowledgeRepository(pool)
	taskRepo := repository.NewTaskRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	tenantRepo := repository.NewTenantRepository(pool)
	apiKeyRepo := repository.NewAPIKeyRepository(pool)
	gateway := repository.NewGateway(pool)

	if cfg.InitTenantName != "" {
		if err := bootstrapInitialTenant(ctx, cfg, tenantRepo, apiKeyRepo); err != nil {
			return fmt.Errorf("failed to bootstrap initial tenant: %w", err)
		}
	}

	embeddingClient := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: openai.EmbeddingModel(cfg.EmbeddingModel),
	})
	embedder := embed.NewEmbedder(embeddingClient)

	loaders := loader.NewRegistry()
	loaders.Register(domain.SourceTypeUserInputText, loader.NewTextLoader())
	if cfg.HasGithub() {
		githubLoader := loader.NewGithubLoader(ctx, cfg.GithubToken)
		loaders.Register(domain.SourceTypeGithubRepo, githubLoader)
		loaders.Register(domain.SourceTypeGithubFile, githubLoader)
		log.Println("github loader registered")
	}
	if cfg.HasS3() {
		s3Loader, err := loader.NewS3Loader(ctx, loader.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 loader: %w", err)
		}
		loaders.Register(domain.SourceTypeS3Object, s3Loader)
		log.Println("s3 loader registered")

		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("s3 bucket %s ready", cfg.S3Bucket)
	}

	taskPool := ingest.NewTaskPool(cfg.PoolCapacity)
	executor := ingest.NewExecutor(taskPool, gateway, loaders, embedder, ingest.Config{
		Concurrency:     cfg.Concurrency,
		TaskTimeout:     cfg.TaskTimeout,
		TimeoutCooldown: cfg.TimeoutCooldown,
		PollInterval:    cfg.PollInterval,
	})
	go executor.Start(ctx)
	log.Printf("ingestion engine started (capacity=%d, concurrency=%d)", cfg.PoolCapacity, cfg.Concurrency)

	if err := recoverStaleTasks(ctx, taskRepo, knowledgeRepo, executor); err != nil {
		log.Printf("stale task recovery failed (continuing): %v", err)
	}

	hitCounter := counter.New(gateway, counter.Config{
		Shards:        cfg.CounterShards,
		FlushInterval: cfg.CounterFlushInterval,
	})
	go hitCounter.Start(ctx)

	uuidGen := &service.DefaultUUIDGenerator{}

	knowledgeSvc := service.NewKnowledgeService(knowledgeRepo, taskRepo, executor)
	taskSvc := service.NewTaskService(taskRepo, executor)
	retrievalSvc := service.NewRetrievalService(chunkRepo, embeddingClient, hitCounter)
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)

	routerCfg := server.RouterConfig{
		AuthValidator:    authSvc,
		KnowledgeHandler: handlers.NewKnowledgeHandler(knowledgeSvc),
		TaskHandler:      handlers.NewTaskHandler(taskSvc),
		RetrievalHandler: handlers.NewRetrievalHandler(retrievalSvc),
		AuthHandler:      handlers.NewAuthHandler(authSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	executor.Stop()
	hitCounter.Stop()

	log.Println("server exited")
	return nil
}

// recoverStaleTasks handles tasks a previous process left behind. Tasks that
// never started (pending) are re-enqueued directly; tasks interrupted
// mid-attempt (running) are parked as pending_retry so an operator decides
// whether to restart them.
func recoverStaleTasks(ctx context.Context, taskRepo *repository.TaskRepository, knowledgeRepo *repository.KnowledgeRepository, executor *ingest.Executor) error {
	stale, err := taskRepo.ListStale(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to list stale tasks: %w", err)
	}

	var requeued, parked int
	for _, task := range stale {
		if task.Status == domain.TaskStatusRunning {
			task.MarkPendingRetry()
			if err := taskRepo.UpsertList(ctx, []*domain.Task{task}); err != nil {
				log.Printf("recovery: failed to park task %s: %v", task.TaskID, err)
				continue
			}
			parked++
			continue
		}

		knowledge, err := knowledgeRepo.GetByID(ctx, task.TenantID, task.KnowledgeID)
		if err != nil {
			log.Printf("recovery: skipping task %s, knowledge %s: %v", task.TaskID, task.KnowledgeID, err)
			continue
		}
		task.MarkPending()
		if err := executor.Submit(ctx, task, knowledge); err != nil {
			log.Printf("recovery: failed to re-enqueue task %s: %v", task.TaskID, err)
			continue
		}
		requeued++
	}

	if len(stale) > 0 {
		log.Printf("recovery: re-enqueued %d stale task(s), parked %d for retry", requeued, parked)
	}
	return nil
}

func bootstrapInitialTenant(ctx context.Context, cfg *config.Config, tenantRepo *repository.TenantRepository, apiKeyRepo *repository.APIKeyRepository) error {
	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, apiKeyRepo, uuidGen)

	tenant, err := tenantRepo.GetByName(ctx, cfg.InitTenantName)
	if err != nil && err != domain.ErrTenantNotFound {
		return fmt.Errorf("failed to check existing tenant: %w", err)
	}

	if tenant == nil {
		tenant, err = authSvc.CreateTenant(ctx, cfg.InitTenantName)
		if err != nil {
			return fmt.Errorf("failed to create tenant: %w", err)
		}
		log.Printf("bootstrap: created tenant '%s' (id: %s)", tenant.Name, tenant.TenantID)
	} else {
		log.Printf("bootstrap: tenant '%s' already exists (id: %s)", tenant.Name, tenant.TenantID)
	}

	if cfg.InitAPIKey != "" {
		if !service.IsValidAPIToken(cfg.InitAPIKey) {
			return fmt.Errorf("invalid BURROW_INIT_API_KEY format (expected 'brw_<64 hex chars>')")
		}

		existingKey, err := authSvc.GetAPIKeyByHash(ctx, cfg.InitAPIKey)
		if err == nil && existingKey != nil {
			log.Printf("bootstrap: API key already exists (id: %s)", existingKey.ID)
			return nil
		}

		if err := authSvc.CreateAPIKeyWithToken(ctx, tenant.TenantID, "bootstrap", cfg.InitAPIKey); err != nil {
			return fmt.Errorf("failed to create API key: %w", err)
		}
		log.Printf("bootstrap: created API key")
	}

	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
