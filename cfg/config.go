package cfg

import (
	"flag"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

// CatalogConfiguration controls namespace defaults and bulk-operation caps
type CatalogConfiguration struct {
	MaxTables            int32 `toml:"max_tables"`              // Default per-namespace table limit
	MaxColumnsPerTable   int32 `toml:"max_columns_per_table"`   // Default per-table column limit
	MaxFilesSelectedOnce int   `toml:"max_files_selected_once"` // Row cap for bulk retention/GC sweeps
}

// StoreConfiguration controls the backing SQLite database
type StoreConfiguration struct {
	Path          string `toml:"path"`            // Database file path, ":memory:" for ephemeral
	BusyTimeoutMS int    `toml:"busy_timeout_ms"` // SQLite busy handler timeout
	ReadPoolSize  int    `toml:"read_pool_size"`  // Connections in the read pool
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Port    int    `toml:"port"`
}

// Configuration is the main configuration structure
type Configuration struct {
	Catalog    CatalogConfiguration    `toml:"catalog"`
	Store      StoreConfiguration      `toml:"store"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	StorePathFlag  = flag.String("store-path", "", "Database path (overrides config)")
	VerboseFlag    = flag.Bool("verbose", false, "Verbose logging (overrides config)")
)

// Default configuration
var Config = &Configuration{
	Catalog: CatalogConfiguration{
		MaxTables:            500,
		MaxColumnsPerTable:   200,
		MaxFilesSelectedOnce: 1000,
	},

	Store: StoreConfiguration{
		Path:          "./cairn.db",
		BusyTimeoutMS: 5000,
		ReadPoolSize:  4,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
		Address: "0.0.0.0",
		Port:    9090,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	if *StorePathFlag != "" {
		Config.Store.Path = *StorePathFlag
	}
	if *VerboseFlag {
		Config.Logging.Verbose = true
	}

	return nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Catalog.MaxTables < 1 {
		return fmt.Errorf("max_tables must be >= 1")
	}

	if Config.Catalog.MaxColumnsPerTable < 1 {
		return fmt.Errorf("max_columns_per_table must be >= 1")
	}

	if Config.Catalog.MaxFilesSelectedOnce < 1 {
		return fmt.Errorf("max_files_selected_once must be >= 1")
	}

	if Config.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}

	if Config.Store.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy timeout must be >= 0")
	}

	if Config.Store.ReadPoolSize < 1 {
		return fmt.Errorf("read pool size must be >= 1")
	}

	if Config.Prometheus.Enabled && (Config.Prometheus.Port < 1 || Config.Prometheus.Port > 65535) {
		return fmt.Errorf("invalid prometheus port: %d", Config.Prometheus.Port)
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}
