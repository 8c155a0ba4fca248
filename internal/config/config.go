package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// MinTrackingInterval bounds how often a tracking session may call the routing provider.
const MinTrackingInterval = 2 * time.Second

// Store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config holds all service settings, populated from environment variables
// layered over an optional YAML file.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	StoreBackend  string
	MongoURI      string
	MongoDatabase string

	// Maps (place details + directions) provider configuration.
	MapsAPIKey    string
	MapsBaseURL   string
	MapsTimeout   time.Duration
	MapsCacheSize int

	TrackingInterval    time.Duration
	TrackingMinInterval time.Duration

	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaReadingsTopic string
	KafkaHazardTopic   string
	KafkaGroupID       string

	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. When MINESAFE_CONFIG names a YAML file, its keys (snake_case versions
// of the env names, e.g. http_addr) sit between the defaults and the env.
func Load() (*Config, error) {
	k := koanf.New(".")
	if path := os.Getenv("MINESAFE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load MINESAFE_CONFIG %s: %w", path, err)
		}
	}
	get := func(env, key, def string) string {
		if k.Exists(key) {
			def = k.String(key)
		}
		return sharedcfg.EnvOrDefault(env, def)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if v, ok := fileOnly(k, "SHUTDOWN_TIMEOUT", "shutdown_timeout"); ok {
		shutdownTimeout, err = parsePositiveDuration("SHUTDOWN_TIMEOUT", v)
	}
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseCacheSize(get("MAPS_CACHE_SIZE", "maps_cache_size", "1000"))
	if err != nil {
		return nil, err
	}

	mapsTimeout, err := parsePositiveDuration("MAPS_TIMEOUT", get("MAPS_TIMEOUT", "maps_timeout", "5s"))
	if err != nil {
		return nil, err
	}
	trackingInterval, err := parsePositiveDuration("TRACKING_INTERVAL", get("TRACKING_INTERVAL", "tracking_interval", "5s"))
	if err != nil {
		return nil, err
	}
	trackingMin, err := parsePositiveDuration("TRACKING_MIN_INTERVAL", get("TRACKING_MIN_INTERVAL", "tracking_min_interval", MinTrackingInterval.String()))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        get("HTTP_ADDR", "http_addr", ":8080"),
		LogLevel:        get("LOG_LEVEL", "log_level", "info"),
		LogFormat:       get("LOG_FORMAT", "log_format", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreBackend:  get("STORE_BACKEND", "store_backend", StoreMemory),
		MongoURI:      get("MONGO_URI", "mongo_uri", ""),
		MongoDatabase: get("MONGO_DATABASE", "mongo_database", "minesafe"),

		MapsAPIKey:    get("MAPS_API_KEY", "maps_api_key", ""),
		MapsBaseURL:   get("MAPS_BASE_URL", "maps_base_url", "https://maps.googleapis.com/maps/api"),
		MapsTimeout:   mapsTimeout,
		MapsCacheSize: cacheSize,

		TrackingInterval:    trackingInterval,
		TrackingMinInterval: trackingMin,

		KafkaEnabled:       get("KAFKA_ENABLED", "kafka_enabled", "false") == "true",
		KafkaBrokers:       parseBrokers(get("KAFKA_BROKERS", "kafka_brokers", "")),
		KafkaReadingsTopic: get("KAFKA_READINGS_TOPIC", "kafka_readings_topic", "sensor-readings"),
		KafkaHazardTopic:   get("KAFKA_HAZARD_TOPIC", "kafka_hazard_topic", "hazard-events"),
		KafkaGroupID:       get("KAFKA_GROUP_ID", "kafka_group_id", "minesafe"),
	}

	cfg.BatchSize, err = sharedcfg.ParseBatchSize()
	if v, ok := fileOnly(k, "BATCH_SIZE", "batch_size"); ok {
		cfg.BatchSize, err = parseBatchSize(v)
	}
	if err != nil {
		return nil, err
	}
	cfg.BatchFlushInterval, err = sharedcfg.ParseBatchFlushInterval()
	if v, ok := fileOnly(k, "BATCH_FLUSH_INTERVAL", "batch_flush_interval"); ok {
		cfg.BatchFlushInterval, err = parsePositiveDuration("BATCH_FLUSH_INTERVAL", v)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("STORE_BACKEND is mongo but MONGO_URI is not set")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}
	if c.TrackingMinInterval < MinTrackingInterval {
		return fmt.Errorf("TRACKING_MIN_INTERVAL must be at least %s", MinTrackingInterval)
	}
	if c.TrackingInterval < c.TrackingMinInterval {
		return fmt.Errorf("TRACKING_INTERVAL must be at least TRACKING_MIN_INTERVAL (%s)", c.TrackingMinInterval)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
		}
		if c.KafkaReadingsTopic == "" {
			return errors.New("KAFKA_READINGS_TOPIC is required")
		}
		if c.KafkaHazardTopic == "" {
			return errors.New("KAFKA_HAZARD_TOPIC is required")
		}
	}
	return nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	return sharedcfg.ParseBrokers(raw)
}

// fileOnly returns the file value for keys the shared parsers read from the
// environment alone. It reports false when the env var is set, since env wins.
func fileOnly(k *koanf.Koanf, env, key string) (string, bool) {
	if os.Getenv(env) != "" || !k.Exists(key) {
		return "", false
	}
	return k.String(key), true
}

// parseBatchSize applies the same 1-1000 bounds as sharedcfg.ParseBatchSize.
func parseBatchSize(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 1000 {
		return 0, errors.New("invalid BATCH_SIZE: must be 1-1000")
	}
	return n, nil
}

func parseCacheSize(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, errors.New("invalid MAPS_CACHE_SIZE: must be a positive integer")
	}
	return n, nil
}
