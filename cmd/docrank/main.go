package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/config"
	"github.com/xxxsen/docrank/internal/handler"
	"github.com/xxxsen/docrank/internal/job"
	"github.com/xxxsen/docrank/internal/metrics"
	"github.com/xxxsen/docrank/internal/middleware"
	"github.com/xxxsen/docrank/internal/schedule"
	"github.com/xxxsen/docrank/internal/service"
)

func main() {
	var (
		configPath string
		envFile    string
	)

	rootCmd := &cobra.Command{
		Use:          "docrank",
		Short:        "rank and summarize documents with an AI assistant",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with OPENAI_API_KEY / OPENAI_ASSISTANT_ID")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docrank server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	rootCmd.AddCommand(runCmd, newAnalyzeCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

// loadConfig reads path, or builds an env-only config when path is empty.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("backend", cfg.Assistant.Backend),
		zap.String("archive", cfg.Archive.Type),
	)

	m := metrics.New()
	analysis, err := buildAnalysisService(cfg, service.WithMetrics(m))
	if err != nil {
		return err
	}
	archive, store, err := buildArchiveService(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if store != nil {
		scheduler := schedule.NewCronScheduler(schedule.WithJobTimeout(10 * time.Minute))
		cleanup := job.NewArchiveCleanupJob(store, time.Duration(cfg.Archive.KeepHours)*time.Hour)
		if err := scheduler.AddJob(cleanup, cfg.Archive.CleanupSpec); err != nil {
			return fmt.Errorf("schedule archive cleanup: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
		if err := scheduler.Trigger(cleanup.Name()); err != nil {
			return err
		}
	}

	deps := handler.RouterDeps{
		Analysis:    handler.NewAnalysisHandler(analysis, archive, cfg.Upload),
		Properties:  handler.NewPropertiesHandler(cfg.Upload),
		Health:      handler.NewHealthHandler(cfg.Assistant.Backend, cfg.Assistant.AssistantID),
		RateLimit:   middleware.RateLimit(time.Duration(cfg.RateLimitSeconds) * time.Second),
		MaxBodySize: cfg.Upload.MaxFileSize*int64(cfg.Upload.MaxFiles) + 1<<20,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
