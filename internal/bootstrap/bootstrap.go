// Package bootstrap assembles the stores, engine and runner shared by the
// api and worker binaries from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"voicestudio/internal/adapter/repo"
	"voicestudio/internal/db"
	"voicestudio/internal/domain"
	"voicestudio/internal/infra"
	"voicestudio/internal/storage"
	"voicestudio/internal/synthesis"
)

// Repositories holds the job and script stores and how to release them.
// Ping is nil for the in-memory stores.
type Repositories struct {
	Jobs    domain.JobRepository
	Scripts domain.ScriptRepository
	Ping    func(ctx context.Context) error
	Close   func()
}

// OpenRepositories selects Postgres when DATABASE_URL is set and in-memory
// stores otherwise. Postgres schemas are migrated first.
func OpenRepositories(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Repositories, error) {
	if cfg.UsesMemoryStore() {
		scripts := repo.NewMemoryScriptRepository()
		if cfg.ScriptFixtures != "" {
			loaded, err := repo.LoadScriptFixtures(cfg.ScriptFixtures)
			if err != nil {
				return nil, err
			}
			scripts = loaded
		} else {
			logger.Warn().Msg("bootstrap: no DATABASE_URL or SCRIPT_FIXTURES, every project is unknown")
		}
		logger.Info().Msg("bootstrap: using in-memory job store")
		return &Repositories{Jobs: repo.NewMemoryJobRepository(), Scripts: scripts, Close: func() {}}, nil
	}

	migrator, err := db.NewMigrator(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	runErr := migrator.Run(ctx)
	if err := errors.Join(runErr, migrator.Close()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sqlRunner := infra.NewSQLRunner(pool, logger)
	return &Repositories{
		Jobs:    repo.NewJobRepository(sqlRunner),
		Scripts: repo.NewScriptRepository(sqlRunner),
		Ping:    pool.Ping,
		Close:   pool.Close,
	}, nil
}

// OpenArtifactStore returns the configured artifact backend. js may be nil
// for the filesystem backend.
func OpenArtifactStore(cfg *infra.Config, js nats.JetStreamContext) (storage.ArtifactStore, error) {
	switch cfg.StorageBackend {
	case infra.StorageBackendNATS:
		if js == nil {
			return nil, errors.New("nats storage backend requires a NATS connection")
		}
		return storage.NewNatsObjectStore(js, cfg.ArtifactBucket)
	default:
		return storage.NewFileStore(cfg.StoragePath)
	}
}

// NewSynthesizer returns the HTTP engine client, or the tone generator when
// no engine URL is configured.
func NewSynthesizer(ctx context.Context, cfg infra.WorkerConfig, logger zerolog.Logger) synthesis.Synthesizer {
	if cfg.EngineURL == "" {
		logger.Warn().Msg("bootstrap: TTS_ENGINE_URL not set, rendering placeholder tones")
		return synthesis.ToneSynthesizer{SampleRate: cfg.SampleRate}
	}
	engine := synthesis.NewHTTPSynthesizer(cfg.EngineURL, cfg.EngineTimeout)
	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := engine.HealthCheck(hctx); err != nil {
		logger.Warn().Err(err).Str("engine_url", cfg.EngineURL).Msg("bootstrap: engine health check failed, continuing")
	}
	return engine
}

// NewRunner builds a synthesis runner from worker settings.
func NewRunner(synth synthesis.Synthesizer, store storage.ArtifactStore, cfg infra.WorkerConfig, logger zerolog.Logger) *synthesis.Runner {
	return synthesis.NewRunner(synth, store, synthesis.RunnerConfig{
		Chunker: synthesis.ChunkerConfig{
			ContextTokens:  cfg.ContextTokens,
			FillRatio:      cfg.FillRatio,
			WordsPerMinute: cfg.WordsPerMinute,
		},
		Crossfade: time.Duration(cfg.CrossfadeMillis) * time.Millisecond,
	}, logger)
}
