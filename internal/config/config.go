package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Data source kinds.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Static asset source.
	DataSource       string
	DataDir          string
	DataBaseURL      string
	FetchTimeout     time.Duration
	HTTPCacheEntries int
	Paths            map[domain.DataDomain]string

	// Domains loaded at startup.
	PreloadDomains []domain.DataDomain

	// Data directory watcher, file source only.
	WatchEnabled  bool
	WatchDebounce time.Duration

	// Domain state change events.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaEventsTopic string
}

var pathEnv = map[domain.DataDomain]struct{ key, def string }{
	domain.CoreData:                {"CORE_DATA_PATH", "app_data_core.json"},
	domain.HistoricalGroundTruth:   {"HISTORICAL_DATA_PATH", "historical-ground-truth-data/historical-ground-truth-data.json"},
	domain.EvaluationPrecalculated: {"EVALUATIONS_DATA_PATH", "app_data_evaluations.json"},
	domain.EvaluationRawScores:     {"RAW_SCORES_DATA_PATH", "app_data_evaluations.json"},
	domain.MapTopology:             {"TOPOLOGY_PATH", "states-10m.json"},
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	watchDebounce, err := parseDuration("WATCH_DEBOUNCE", "500ms")
	if err != nil {
		return nil, err
	}
	watchEnabled, err := parseBool("WATCH_ENABLED")
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED")
	if err != nil {
		return nil, err
	}
	cacheEntries, err := strconv.Atoi(sharedcfg.EnvOrDefault("HTTP_CACHE_ENTRIES", "16"))
	if err != nil || cacheEntries < 0 {
		return nil, errors.New("invalid HTTP_CACHE_ENTRIES")
	}
	preload, err := parseDomains(sharedcfg.EnvOrDefault("PRELOAD_DOMAINS", string(domain.CoreData)))
	if err != nil {
		return nil, err
	}

	paths := make(map[domain.DataDomain]string, len(pathEnv))
	for d, env := range pathEnv {
		paths[d] = strings.TrimPrefix(sharedcfg.EnvOrDefault(env.key, env.def), "/")
	}

	cfg := &Config{
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		DataSource:       sharedcfg.EnvOrDefault("DATA_SOURCE", SourceFile),
		DataDir:          sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		DataBaseURL:      strings.TrimSuffix(os.Getenv("DATA_BASE_URL"), "/"),
		FetchTimeout:     fetchTimeout,
		HTTPCacheEntries: cacheEntries,
		Paths:            paths,
		PreloadDomains:   preload,
		WatchEnabled:     watchEnabled,
		WatchDebounce:    watchDebounce,
		KafkaEnabled:     kafkaEnabled,
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "forecast-data-events"),
	}

	switch cfg.DataSource {
	case SourceFile:
		if cfg.DataDir == "" {
			return nil, errors.New("DATA_DIR is required when DATA_SOURCE is file")
		}
	case SourceHTTP:
		if cfg.DataBaseURL == "" {
			return nil, errors.New("DATA_BASE_URL is required when DATA_SOURCE is http")
		}
		if cfg.WatchEnabled {
			return nil, errors.New("WATCH_ENABLED requires DATA_SOURCE=file")
		}
	default:
		return nil, fmt.Errorf("invalid DATA_SOURCE %q: want file or http", cfg.DataSource)
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaEventsTopic == "" {
			return nil, errors.New("KAFKA_EVENTS_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parseDomains(s string) ([]domain.DataDomain, error) {
	var out []domain.DataDomain
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		d, err := domain.ParseDataDomain(name)
		if err != nil {
			return nil, fmt.Errorf("invalid PRELOAD_DOMAINS: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
