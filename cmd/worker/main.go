package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-quote/internal/app"
	"github.com/noah-isme/backend-quote/internal/config"
	"github.com/noah-isme/backend-quote/internal/obs"
	"github.com/noah-isme/backend-quote/internal/reconcile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "quote"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.New(initCtx, cfg, logger, app.Options{SkipTasks: true})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	connOpt, err := app.RedisConnOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency:     cfg.WorkerConcurrency,
		Queues:          map[string]int{cfg.ReconcileQueue: 1},
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          taskLogger{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(reconcile.TaskMatch, reconcile.NewMatchHandler(deps.Reconcile))

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// taskLogger routes asynq's internal logging through zerolog.
type taskLogger struct {
	l zerolog.Logger
}

func (t taskLogger) Debug(args ...interface{}) { t.l.Debug().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Info(args ...interface{})  { t.l.Info().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Warn(args ...interface{})  { t.l.Warn().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Error(args ...interface{}) { t.l.Error().Msg(fmt.Sprint(args...)) }
func (t taskLogger) Fatal(args ...interface{}) { t.l.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
