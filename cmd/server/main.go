package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/policy-approval/internal/audit"
	"github.com/garyjia/policy-approval/internal/config"
	"github.com/garyjia/policy-approval/internal/directory"
	httpserver "github.com/garyjia/policy-approval/internal/interfaces/http"
	"github.com/garyjia/policy-approval/internal/policy"
	"github.com/garyjia/policy-approval/internal/repository"
	"github.com/garyjia/policy-approval/internal/template"
	"github.com/garyjia/policy-approval/internal/validator"
	"github.com/garyjia/policy-approval/internal/version"
	"github.com/garyjia/policy-approval/internal/workflow"
	"github.com/garyjia/policy-approval/migrations"
	"github.com/garyjia/policy-approval/pkg/database"
	"github.com/garyjia/policy-approval/pkg/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(logging.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Policy Approval Service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Initialize database
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("Failed to create data directory", zap.Error(err))
		}
	}
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(migrations.Files); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	policyRepo := repository.NewPolicyRepository(db.DB, logger)
	templateRepo := repository.NewTemplateRepository(db.DB, logger)
	instanceRepo := repository.NewInstanceRepository(db.DB, logger)
	actionRepo := repository.NewActionRepository(db.DB, logger)
	versionRepo := repository.NewVersionRepository(db.DB, logger)
	documentRepo := repository.NewDocumentRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	// Audit trail writes on its own goroutine, outside workflow transactions
	trail := audit.NewTrail(auditRepo, cfg.Workflow.AuditBuffer, logger)
	defer trail.Close()

	// Role directory and validators
	roles := directory.NewSQLiteDirectory(db.DB, logger)
	structureValidator := validator.NewStructureValidator(logger)
	templateValidator := validator.NewTemplateValidator(roles, logger)

	// Versioning facade
	versionFacade := version.NewFacade(db, policyRepo, versionRepo, documentRepo, trail, logger)

	// Workflow engine
	engine := workflow.NewEngine(workflow.Deps{
		Tx:        db,
		Policies:  policyRepo,
		Templates: templateRepo,
		Instances: instanceRepo,
		Actions:   actionRepo,
		Documents: documentRepo,
		Versions:  versionFacade,
		Structure: structureValidator,
		Roles:     roles,
		Audit:     trail,
	}, cfg.Workflow.AdminRole, logger)

	// Template and policy services
	templateStore := template.NewStore(db, templateRepo, templateValidator, logger)
	policyService := policy.NewService(db, policyRepo, documentRepo, versionFacade, logger)

	// HTTP server
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, httpserver.Services{
		Policies:  policyService,
		Templates: templateStore,
		Engine:    engine,
		Versions:  versionFacade,
		Audit:     auditRepo,
	}, logger)

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
