package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opsai/opsflow/engine/activity"
	"github.com/opsai/opsflow/engine/activity/builtin"
	"github.com/opsai/opsflow/engine/execution"
	"github.com/opsai/opsflow/engine/infra/server"
	"github.com/opsai/opsflow/engine/infra/store"
	"github.com/opsai/opsflow/engine/service"
	"github.com/opsai/opsflow/engine/task"
	"github.com/opsai/opsflow/engine/workflow"
	"github.com/opsai/opsflow/pkg/config"
	"github.com/opsai/opsflow/pkg/logger"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
	cmd.Flags().Bool("memory", false, "Use the in-memory execution store instead of PostgreSQL")
	return cmd
}

func runServe(cmd *cobra.Command) error {
	log, err := setupCommandLogger(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	useMemory, err := cmd.Flags().GetBool("memory")
	if err != nil {
		return err
	}
	repo, db, err := buildExecutionRepo(ctx, cfg, useMemory)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close(ctx)
	}

	registry := activity.NewRegistry()
	var dbIface store.DBInterface
	if db != nil {
		dbIface = db
	}
	if err := builtin.RegisterAll(registry, dbIface); err != nil {
		return fmt.Errorf("registering builtin activities: %w", err)
	}

	defs := workflow.NewMemoryStore()
	svc := service.New(ctx, defs, repo, registry, service.Options{
		Defaults: task.Defaults{
			Timeout:         cfg.Engine.StepTimeout,
			MaxAttempts:     cfg.Engine.MaxAttempts,
			InitialInterval: cfg.Engine.InitialInterval,
			MaxInterval:     cfg.Engine.MaxInterval,
		},
		SyncInterval: cfg.Engine.SchedulerTick,
	})

	if cfg.Definitions.Dir != "" {
		if _, err := workflow.LoadDir(ctx, defs, cfg.Definitions.Dir); err != nil {
			return fmt.Errorf("loading workflow definitions: %w", err)
		}
	}

	return server.New(&cfg.Server, svc, log).Run(ctx)
}

func buildExecutionRepo(ctx context.Context, cfg *config.Config, useMemory bool) (execution.Repository, *store.DB, error) {
	if useMemory {
		logger.FromContext(ctx).Info("using in-memory execution store")
		return store.NewMemoryRepo(), nil, nil
	}
	db, err := store.NewDB(ctx, &store.Config{
		ConnString: cfg.Database.ConnString,
		Host:       cfg.Database.Host,
		Port:       cfg.Database.Port,
		User:       cfg.Database.User,
		Password:   cfg.Database.Password,
		DBName:     cfg.Database.DBName,
		SSLMode:    cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := store.RunMigrations(ctx, db); err != nil {
			db.Close(ctx)
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return store.NewExecutionRepo(db), db, nil
}

func setupCommandLogger(cmd *cobra.Command) (logger.Logger, error) {
	level, logJSON, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return nil, err
	}
	return logger.SetupLogger(level, logJSON, logSource), nil
}
