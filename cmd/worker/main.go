package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicestudio/internal/bootstrap"
	"voicestudio/internal/infra"
	"voicestudio/internal/queue"
	"voicestudio/internal/synthesis"
)

const progressTimeout = 5 * time.Second

func main() {
	_ = godotenv.Load(".env", ".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.NATSURL == "" {
		logger.Fatal().Msg("worker: NATS_URL is required; without it the api runs its own pool")
	}
	nc, js, err := infra.ConnectNATS(cfg, "voicestudio-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect nats")
	}
	defer nc.Drain()

	subjects := queue.NewSubjects(cfg.NATSSubjectPrefix)
	if err := queue.EnsureStream(js, subjects); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to ensure work queue stream")
	}

	store, err := bootstrap.OpenArtifactStore(cfg, js)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open artifact store")
	}

	synth := bootstrap.NewSynthesizer(ctx, cfg.Worker, logger)
	pool := synthesis.NewPool(bootstrap.NewRunner(synth, store, cfg.Worker, logger), cfg.Worker.Concurrency, logger)
	pool.Start(ctx, queue.NewProgressPublisher(nc, subjects, progressTimeout))

	logger.Info().
		Int("concurrency", cfg.Worker.Concurrency).
		Str("storage", cfg.StorageBackend).
		Msg("worker: started")
	if err := queue.NewTaskConsumer(nc, js, subjects, pool, logger).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: consumer stopped")
		stop()
	}

	pool.Wait()
	logger.Info().Msg("worker: stopped")
}
