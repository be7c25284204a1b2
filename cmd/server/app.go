package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/traindeck/traindeck-api/internal/api"
	"github.com/traindeck/traindeck-api/internal/api/middleware"
	"github.com/traindeck/traindeck-api/internal/config"
	"github.com/traindeck/traindeck-api/internal/executor"
	"github.com/traindeck/traindeck-api/internal/platform/gemini"
	"github.com/traindeck/traindeck-api/internal/platform/postgres"
	"github.com/traindeck/traindeck-api/internal/platform/speechapi"
	"github.com/traindeck/traindeck-api/internal/platform/videohost"
	"github.com/traindeck/traindeck-api/internal/service"
	"github.com/traindeck/traindeck-api/internal/upload"
	"github.com/traindeck/traindeck-api/internal/worker"
)

// application holds the wired dependency graph for the server process.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	server *http.Server
}

// newApplication connects the store, service, providers, executors and
// HTTP surface. Construction fails fast: a missing secret or an
// unreachable database should stop the deploy, not surface per-request.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, log); err != nil {
		_ = db.Close()
		return nil, err
	}

	jobStore := postgres.NewPostgresJobStore(db)
	svc := service.NewJobService(jobStore, log)

	registry, err := buildRegistry(ctx, cfg, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("executors registered", "job_types", registry.Types())

	processor := worker.NewProcessor(svc, registry, cfg.Processor, log)

	jobHandler := api.NewJobHandler(svc, log)
	processHandler := api.NewProcessHandler(processor, svc, cfg.Processor.RetentionDays, log)
	healthHandler := api.NewHealthHandler(db)

	router := newRouter(routerDeps{
		auth:           middleware.NewAuthMiddleware(cfg.Auth.JWTSecret),
		trigger:        middleware.NewTriggerAuth(cfg.Auth.TriggerSecret),
		jobHandler:     jobHandler,
		processHandler: processHandler,
		healthHandler:  healthHandler,
	})

	return &application{
		cfg:    cfg,
		logger: log,
		db:     db,
		server: newHTTPServer(cfg.Server, router),
	}, nil
}

// buildRegistry constructs the provider clients and registers one
// executor per job type.
func buildRegistry(ctx context.Context, cfg *config.Config, log *slog.Logger) (*executor.Registry, error) {
	llm, err := gemini.NewClient(ctx, log, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	speech := speechapi.NewClient(cfg.Upload.SpeechAPIURL, cfg.Upload.SpeechAPIKey, log)
	uploader := upload.New(cfg.Upload, log)
	host := videohost.New(cfg.Upload.VideoHostURL, uploader, log)

	registry := executor.NewRegistry()
	executors := []executor.Executor{
		executor.NewTranscriptionExecutor(speech),
		executor.NewDocumentGenerationExecutor(llm),
		executor.NewMediaUploadExecutor(host),
		executor.NewSpeechSynthesisExecutor(speech),
		executor.NewAnswerEvaluationExecutor(llm),
	}
	for _, e := range executors {
		if err := registry.Register(e); err != nil {
			return nil, fmt.Errorf("failed to register executor: %w", err)
		}
	}
	return registry, nil
}

// Close releases the application's resources.
func (a *application) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", "error", err)
		}
	}
}
