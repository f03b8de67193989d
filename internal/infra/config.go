package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	ScriptFixtures     string
	NATSURL            string
	NATSSubjectPrefix  string
	StorageBackend     string
	StoragePath        string
	ArtifactBucket     string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSOrigins        []string
	WatchdogInterval   time.Duration
	StallTimeout       time.Duration
	AverageJobDuration time.Duration
	Worker             WorkerConfig
}

// WorkerConfig tunes the synthesis side. It can be set from env or from the
// TOML file named by STUDIO_CONFIG; env wins.
type WorkerConfig struct {
	Concurrency     int           `toml:"concurrency"`
	EngineURL       string        `toml:"engine_url"`
	EngineTimeout   time.Duration `toml:"-"`
	SampleRate      int           `toml:"sample_rate"`
	ContextTokens   int           `toml:"context_tokens"`
	FillRatio       float64       `toml:"fill_ratio"`
	WordsPerMinute  int           `toml:"words_per_minute"`
	CrossfadeMillis int           `toml:"crossfade_ms"`
}

type fileConfig struct {
	Worker struct {
		WorkerConfig
		EngineTimeoutSeconds int `toml:"engine_timeout_seconds"`
	} `toml:"worker"`
	Watchdog struct {
		IntervalSeconds     int `toml:"interval_seconds"`
		StallTimeoutSeconds int `toml:"stall_timeout_seconds"`
		AverageJobSeconds   int `toml:"average_job_seconds"`
	} `toml:"watchdog"`
}

const (
	StorageBackendFS   = "fs"
	StorageBackendNATS = "nats"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	file, err := loadFileConfig(os.Getenv("STUDIO_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		ScriptFixtures:     os.Getenv("SCRIPT_FIXTURES"),
		NATSURL:            os.Getenv("NATS_URL"),
		NATSSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "generation"),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageBackendFS)),
		StoragePath:        getEnv("STORAGE_PATH", "./data/artifacts"),
		ArtifactBucket:     getEnv("ARTIFACT_BUCKET", "generation-artifacts"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		WatchdogInterval:   time.Second * time.Duration(getEnvInt("WATCHDOG_INTERVAL_SECONDS", orInt(file.Watchdog.IntervalSeconds, 30))),
		StallTimeout:       time.Second * time.Duration(getEnvInt("STALL_TIMEOUT_SECONDS", orInt(file.Watchdog.StallTimeoutSeconds, 600))),
		AverageJobDuration: time.Second * time.Duration(getEnvInt("AVERAGE_JOB_SECONDS", orInt(file.Watchdog.AverageJobSeconds, 600))),
		Worker: WorkerConfig{
			Concurrency:     getEnvInt("WORKER_CONCURRENCY", orInt(file.Worker.Concurrency, 1)),
			EngineURL:       getEnv("TTS_ENGINE_URL", file.Worker.EngineURL),
			EngineTimeout:   time.Second * time.Duration(getEnvInt("TTS_TIMEOUT_SECONDS", orInt(file.Worker.EngineTimeoutSeconds, 300))),
			SampleRate:      getEnvInt("TTS_SAMPLE_RATE", orInt(file.Worker.SampleRate, 24000)),
			ContextTokens:   getEnvInt("CHUNK_CONTEXT_TOKENS", orInt(file.Worker.ContextTokens, 64000)),
			FillRatio:       orFloat(file.Worker.FillRatio, 0.8),
			WordsPerMinute:  orInt(file.Worker.WordsPerMinute, 150),
			CrossfadeMillis: getEnvInt("CROSSFADE_MS", orInt(file.Worker.CrossfadeMillis, 500)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.StorageBackend {
	case StorageBackendFS:
	case StorageBackendNATS:
		if c.NATSURL == "" {
			errs = append(errs, errors.New("STORAGE_BACKEND=nats requires NATS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", StorageBackendFS, StorageBackendNATS, c.StorageBackend))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency))
	}
	if c.Worker.FillRatio <= 0 || c.Worker.FillRatio > 1 {
		errs = append(errs, fmt.Errorf("worker fill_ratio must be in (0, 1], got %g", c.Worker.FillRatio))
	}
	if c.StallTimeout <= 0 {
		errs = append(errs, errors.New("STALL_TIMEOUT_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

// UsesMemoryStore reports whether jobs live in process memory.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == ""
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
