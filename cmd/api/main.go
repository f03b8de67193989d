package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"voicestudio/internal/bootstrap"
	"voicestudio/internal/generation"
	"voicestudio/internal/http/handlers"
	httpapi "voicestudio/internal/http/httpapi"
	"voicestudio/internal/infra"
	"voicestudio/internal/queue"
	"voicestudio/internal/synthesis"
)

func main() {
	// .env is optional.
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := bootstrap.OpenRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open repositories")
	}
	defer repos.Close()

	var (
		nc *nats.Conn
		js nats.JetStreamContext
	)
	if cfg.NATSURL != "" {
		nc, js, err = infra.ConnectNATS(cfg, "voicestudio-api", logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to connect nats")
		}
		defer nc.Drain()
	}

	store, err := bootstrap.OpenArtifactStore(cfg, js)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to open artifact store")
	}

	opts := generation.Options{AverageJobDuration: cfg.AverageJobDuration}
	var (
		manager   *generation.Manager
		localPool *synthesis.Pool
	)
	if nc != nil {
		subjects := queue.NewSubjects(cfg.NATSSubjectPrefix)
		if err := queue.EnsureStream(js, subjects); err != nil {
			logger.Fatal().Err(err).Msg("api: failed to ensure work queue stream")
		}
		manager = generation.NewManager(repos.Jobs, repos.Scripts, queue.NewDispatcher(nc, js, subjects, logger), logger, opts)
		sub, err := queue.NewProgressListener(nc, subjects, manager, logger).Start()
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to subscribe to progress")
		}
		defer sub.Drain()
		logger.Info().Str("subject", subjects.Jobs()).Msg("api: dispatching to nats workers")
	} else {
		synth := bootstrap.NewSynthesizer(ctx, cfg.Worker, logger)
		localPool = synthesis.NewPool(bootstrap.NewRunner(synth, store, cfg.Worker, logger), cfg.Worker.Concurrency, logger)
		manager = generation.NewManager(repos.Jobs, repos.Scripts, localPool, logger, opts)
		localPool.Start(ctx, manager)
		logger.Info().Int("workers", cfg.Worker.Concurrency).Msg("api: running in-process worker pool")
	}

	watchdog := generation.NewWatchdog(manager, generation.WatchdogConfig{
		Interval:     cfg.WatchdogInterval,
		StallTimeout: cfg.StallTimeout,
	})
	go func() { _ = watchdog.Run(ctx) }()

	app := handlers.NewApp(manager, generation.NewArtifactReader(manager, store), logger)
	if repos.Ping != nil {
		app.WithHealthCheck("database", repos.Ping)
	}
	if nc != nil {
		app.WithHealthCheck("nats", func(context.Context) error {
			if status := nc.Status(); status != nats.CONNECTED {
				return fmt.Errorf("nats connection is %s", status)
			}
			return nil
		})
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	if localPool != nil {
		localPool.Wait()
	}
	logger.Info().Msg("api: stopped")
}
