package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all process settings, populated from environment variables.
type Config struct {
	PipelinePath    string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	MetricsTextfile string

	// PurpleAir history API.
	PurpleAirAPIKey       string
	PurpleAirBaseURL      string
	PurpleAirTimeout      time.Duration
	PurpleAirRequestDelay time.Duration

	// Optional tract sinks.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaSinkTopic  string
	DatabaseURL     string
	SinkMaxAttempts int

	LookupCacheSize int
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is loaded first if present;
// variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	paTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("PURPLEAIR_TIMEOUT", "30s"))
	if err != nil || paTimeout <= 0 {
		return nil, errors.New("invalid PURPLEAIR_TIMEOUT")
	}

	paDelay, err := time.ParseDuration(sharedcfg.EnvOrDefault("PURPLEAIR_REQUEST_DELAY", "5s"))
	if err != nil || paDelay < 0 {
		return nil, errors.New("invalid PURPLEAIR_REQUEST_DELAY")
	}

	cacheSize, err := parsePositiveInt("LOOKUP_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	attempts, err := parsePositiveInt("SINK_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	brokers := sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		PipelinePath:    sharedcfg.EnvOrDefault("PIPELINE_CONFIG", "pipeline.yaml"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),

		PurpleAirAPIKey:       os.Getenv("PURPLEAIR_API_KEY"),
		PurpleAirBaseURL:      sharedcfg.EnvOrDefault("PURPLEAIR_BASE_URL", "https://api.purpleair.com"),
		PurpleAirTimeout:      paTimeout,
		PurpleAirRequestDelay: paDelay,

		KafkaEnabled:    kafkaEnabled,
		KafkaBrokers:    brokers,
		KafkaSinkTopic:  sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "tract-aqi"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SinkMaxAttempts: attempts,

		LookupCacheSize: cacheSize,
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}
