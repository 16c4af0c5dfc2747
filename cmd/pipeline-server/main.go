// cmd/pipeline-server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"orgdiag-pipeline/internal/alerts"
	"orgdiag-pipeline/internal/api"
	"orgdiag-pipeline/internal/common/auth"
	commonaws "orgdiag-pipeline/internal/common/aws"
	"orgdiag-pipeline/internal/common/config"
	"orgdiag-pipeline/internal/common/database"
	"orgdiag-pipeline/internal/common/logger"
	"orgdiag-pipeline/internal/common/observability"
	"orgdiag-pipeline/internal/models"
	"orgdiag-pipeline/internal/pipeline/assemble"
	"orgdiag-pipeline/internal/pipeline/dispatch"
	"orgdiag-pipeline/internal/pipeline/group"
	"orgdiag-pipeline/internal/pipeline/ingest"
	"orgdiag-pipeline/internal/pipeline/interpret"
	"orgdiag-pipeline/internal/pipeline/orchestrator"
	"orgdiag-pipeline/internal/pipeline/render"
	"orgdiag-pipeline/internal/store/narrativecache"
	"orgdiag-pipeline/internal/store/reportindex"
	"orgdiag-pipeline/internal/store/runlog"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting pipeline server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("pipeline-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry (optional run log) ---
	var runLog *runlog.Store
	if cfg.Database.Host != "" {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database)
			if err != nil {
				return err
			}
			// Test the connection with context
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		runLog = runlog.NewStore(pg.DB, log)
		if err := runLog.Init(ctx); err != nil {
			zapLog.Fatal("run-log schema init failed", zap.Error(err))
		}
	} else {
		zapLog.Info("No database configured, run log disabled")
	}

	// --- Init Redis with retry (optional narrative cache) ---
	var narrativeCache *narrativecache.Cache
	if cfg.Redis.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Redis)
			if err != nil {
				return err
			}
			// Test the connection with context
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")

		cacheTTL := time.Duration(cfg.Interpreter.CacheTTL) * time.Millisecond
		narrativeCache = narrativecache.NewCache(rdb.Client, cacheTTL, log)
	}

	// --- Init Elasticsearch with retry (optional report index) ---
	var indexer *reportindex.Indexer
	if cfg.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		indexer = reportindex.NewIndexer(esClient.Client, cfg.Elasticsearch.Index, log)
	}

	// --- Init SNS alert notifier ---
	var notifier *alerts.Notifier
	if cfg.Alerts.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Alerts.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		notifier, err = alerts.NewNotifier(snsClient, cfg.Alerts.SNSTopicARN, log)
		if err != nil {
			zapLog.Fatal("alert notifier init failed", zap.Error(err))
		}
		zapLog.Info("Alert notifier initialized")
	}

	// --- Build pipeline stage services ---
	ingestSvc := ingest.NewService(ingest.ServiceDependencies{Logger: log}, &ingest.Config{
		MalformedRowThreshold: cfg.Pipeline.MalformedRowThreshold,
	})

	groupSvc := group.NewService(group.ServiceDependencies{Logger: log}, &group.Config{
		MinSampleSize: cfg.Pipeline.MinSampleSize,
	})

	interpretDeps := interpret.ServiceDependencies{
		Logger:  log,
		Limiter: rate.NewLimiter(rate.Limit(cfg.Interpreter.RateLimitPerSec), cfg.Interpreter.RateLimitBurst),
	}
	if narrativeCache != nil {
		interpretDeps.Cache = narrativeCache
	}
	interpretSvc, err := interpret.NewService(interpretDeps, &interpret.Config{
		Provider:   cfg.Interpreter.Provider,
		Model:      cfg.Interpreter.Model,
		APIKey:     cfg.Interpreter.APIKey,
		BaseURL:    cfg.Interpreter.BaseURL,
		Timeout:    time.Duration(cfg.Interpreter.Timeout) * time.Millisecond,
		MaxRetries: cfg.Interpreter.MaxRetries,
	})
	if err != nil {
		zapLog.Fatal("interpreter init failed", zap.Error(err))
	}

	assembleSvc := assemble.NewService(assemble.ServiceDependencies{Logger: log}, &assemble.Config{
		DefaultTemplate: cfg.Renderer.DefaultTemplate,
		Branding: models.Branding{
			PrimaryColor: cfg.Branding.PrimaryColor,
			AccentColor:  cfg.Branding.AccentColor,
			LogoURL:      cfg.Branding.LogoURL,
			FooterText:   cfg.Branding.FooterText,
		},
	})

	renderSvc, err := render.NewService(render.ServiceDependencies{Logger: log}, &render.Config{
		TemplateDir:    cfg.Renderer.TemplateDir,
		RegistryPath:   cfg.Renderer.RegistryPath,
		Timeout:        time.Duration(cfg.Renderer.Timeout) * time.Millisecond,
		MaxRetries:     cfg.Renderer.MaxRetries,
		ChromePath:     cfg.Renderer.ChromePath,
		DisableSandbox: cfg.Renderer.DisableSandbox,
	})
	if err != nil {
		zapLog.Fatal("renderer init failed", zap.Error(err))
	}

	dispatchSvc, err := dispatch.NewService(dispatch.ServiceDependencies{Logger: log}, &dispatch.Config{
		Transport:     cfg.Dispatcher.Transport,
		SMTPHost:      cfg.Dispatcher.SMTP.Host,
		SMTPPort:      cfg.Dispatcher.SMTP.Port,
		SMTPUsername:  cfg.Dispatcher.SMTP.Username,
		SMTPPassword:  cfg.Dispatcher.SMTP.Password,
		UseTLS:        cfg.Dispatcher.SMTP.UseTLS,
		SMTPFrom:      cfg.Dispatcher.SMTP.From,
		SESRegion:     cfg.Dispatcher.SES.Region,
		SESFrom:       cfg.Dispatcher.SES.From,
		MaxRetries:    cfg.Dispatcher.MaxRetries,
		SubjectPrefix: cfg.Dispatcher.SubjectPrefix,
	})
	if err != nil {
		zapLog.Fatal("dispatcher init failed", zap.Error(err))
	}

	zapLog.Info("All pipeline stages initialized")

	// --- Build orchestrator ---
	orchDeps := orchestrator.ServiceDependencies{
		Logger:      log,
		Ingester:    ingestSvc,
		Grouper:     groupSvc,
		Interpreter: interpretSvc,
		Assembler:   assembleSvc,
		Renderer:    renderSvc,
		Dispatcher:  dispatchSvc,
	}
	if runLog != nil {
		orchDeps.RunLog = runLog
	}
	if indexer != nil {
		orchDeps.Indexer = indexer
	}
	if notifier != nil {
		orchDeps.Alerter = notifier
	}

	pipeline, err := orchestrator.NewService(orchDeps, &orchestrator.Config{
		MaxWorkers:         cfg.Pipeline.MaxWorkers,
		TeamFilterRequired: cfg.Pipeline.TeamFilterRequired,
		RunRetention:       time.Duration(cfg.Pipeline.RunRetention) * time.Millisecond,
	})
	if err != nil {
		zapLog.Fatal("orchestrator init failed", zap.Error(err))
	}

	// --- Build API server ---
	apiDeps := api.ServerDependencies{
		Logger:   log,
		Pipeline: pipeline,
		Gate:     auth.NewGate(cfg.Auth.AdminToken, log),
	}
	if indexer != nil {
		apiDeps.Search = indexer
	}
	apiServer := api.NewServer(&api.Config{DatasetDir: cfg.Server.DatasetDir}, apiDeps)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiServer.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}

	go func() {
		zapLog.Info(fmt.Sprintf("API server listening on :%d", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Standalone Health & Metrics Server ---
	if cfg.Metrics.Enabled && cfg.Metrics.Port != 0 {
		go func() {
			http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "healthy",
					"time":   time.Now().Format(time.RFC3339),
				})
			})
			http.Handle("/metrics", promhttp.Handler())
			zapLog.Info(fmt.Sprintf("Health/Metrics server listening on :%d", cfg.Metrics.Port))
			if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Metrics.Port), nil); err != nil {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Pipeline server stopped gracefully")
}
