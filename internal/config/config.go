package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/malaria-risk-index/internal/index"
	"github.com/couchcryptid/malaria-risk-index/internal/lst"
)

// Raster-algebra engines.
const (
	EngineRemote = "remote"
	EngineLocal  = "local"
)

// Region boundary sources.
const (
	RegionSourceShapefile = "shapefile"
	RegionSourcePostGIS   = "postgis"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Raster-algebra engine.
	Engine            string
	EngineCatalog     string
	EngineURL         string
	EngineCredentials string
	EngineTimeout     time.Duration

	// Index model.
	Sensor        lst.Sensor
	UseNDVI       bool
	NormalizeNDVI bool
	Index         index.Options

	// Region boundaries.
	RegionSource    string
	RegionShapefile string
	RegionNameField string
	PostgresDSN     string
	RegionCacheSize int
	RegionCacheDir  string

	// Map export events.
	ExportEnabled bool
	KafkaBrokers  []string
	KafkaTopic    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	engineTimeout, err := parseDuration("ENGINE_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	sensor, err := lst.ParseSensor(sharedcfg.EnvOrDefault("LST_SENSOR", "L8"))
	if err != nil {
		return nil, fmt.Errorf("invalid LST_SENSOR: %w", err)
	}

	useNDVI, err := parseBool("LST_USE_NDVI", true)
	if err != nil {
		return nil, err
	}
	normalizeNDVI, err := parseBool("NDVI_NORMALIZE", false)
	if err != nil {
		return nil, err
	}
	exportEnabled, err := parseBool("EXPORT_EVENTS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	opts, err := parseIndexOptions()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Engine:            sharedcfg.EnvOrDefault("ENGINE", EngineRemote),
		EngineCatalog:     os.Getenv("ENGINE_CATALOG"),
		EngineURL:         sharedcfg.EnvOrDefault("ENGINE_URL", "http://localhost:8081"),
		EngineCredentials: os.Getenv("ENGINE_CREDENTIALS"),
		EngineTimeout:     engineTimeout,

		Sensor:        sensor,
		UseNDVI:       useNDVI,
		NormalizeNDVI: normalizeNDVI,
		Index:         opts,

		RegionSource:    sharedcfg.EnvOrDefault("REGION_SOURCE", RegionSourceShapefile),
		RegionShapefile: sharedcfg.EnvOrDefault("REGION_SHAPEFILE", "data/gaul_level2.shp"),
		RegionNameField: sharedcfg.EnvOrDefault("REGION_NAME_FIELD", "ADM1_NAME"),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
		RegionCacheSize: parsePositiveInt("REGION_CACHE_SIZE", 256),
		RegionCacheDir:  os.Getenv("REGION_CACHE_DIR"),

		ExportEnabled: exportEnabled,
		KafkaBrokers:  sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:    sharedcfg.EnvOrDefault("KAFKA_TOPIC", "map-exports"),
	}

	switch cfg.Engine {
	case EngineRemote:
		if cfg.EngineURL == "" {
			return nil, errors.New("ENGINE_URL is required for the remote engine")
		}
	case EngineLocal:
		if cfg.EngineCatalog == "" {
			return nil, errors.New("ENGINE_CATALOG is required for the local engine")
		}
	default:
		return nil, fmt.Errorf("invalid ENGINE %q", cfg.Engine)
	}
	switch cfg.RegionSource {
	case RegionSourceShapefile:
		if cfg.RegionShapefile == "" {
			return nil, errors.New("REGION_SHAPEFILE is required for the shapefile region source")
		}
	case RegionSourcePostGIS:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("POSTGRES_DSN is required for the postgis region source")
		}
	default:
		return nil, fmt.Errorf("invalid REGION_SOURCE %q", cfg.RegionSource)
	}
	if cfg.ExportEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when export events are enabled")
		}
		if cfg.KafkaTopic == "" {
			return nil, errors.New("KAFKA_TOPIC is required when export events are enabled")
		}
	}

	return cfg, nil
}

func parseIndexOptions() (index.Options, error) {
	opts := index.DefaultOptions()

	smooth, err := parseBool("INDEX_SMOOTH", opts.Smooth)
	if err != nil {
		return opts, err
	}
	opts.Smooth = smooth
	opts.Radius = parsePositiveInt("INDEX_SMOOTH_RADIUS", opts.Radius)

	if opts.LowPercentile, err = parseFloat("INDEX_LOW_PERCENTILE", opts.LowPercentile); err != nil {
		return opts, err
	}
	if opts.HighPercentile, err = parseFloat("INDEX_HIGH_PERCENTILE", opts.HighPercentile); err != nil {
		return opts, err
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid index options: %w", err)
	}
	return opts, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
