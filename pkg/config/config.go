// Package config provides configuration management for the neuroh5 module.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Run      RunConfig      `mapstructure:"run"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// RunConfig holds per-job configuration: how many ranks this process
// emulates and where it keeps working files.
type RunConfig struct {
	Version  string `mapstructure:"version"`
	DataDir  string `mapstructure:"data_dir"`
	NumRanks int    `mapstructure:"num_ranks"`
}

// DatabaseConfig holds the manifest catalog's database connection
// configuration (the fields a catalog.DBConfig for catalog.NewGormDB is
// built from).
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// StorageConfig holds block-store backend configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage

	// Compress wraps the selected backend in compressedstore when true.
	Compress        bool   `mapstructure:"compress"`
	CompressionType string `mapstructure:"compression_type"`  // zstd, gzip, or none
	CompressionLevel string `mapstructure:"compression_level"` // fastest, default, or best
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"` // json or text
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Determine config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/perf-analysis")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Check if it's a "file not found" error (either viper's type or os error)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			fmt.Println("Config file not found, using defaults")
		} else if os.IsNotExist(err) {
			// File specified but doesn't exist, use defaults
			fmt.Printf("Config file %s not found, using defaults\n", configPath)
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow environment variables to override config
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Run defaults
	v.SetDefault("run.version", "1.0.0")
	v.SetDefault("run.data_dir", "./data")
	v.SetDefault("run.num_ranks", 1)

	// Database defaults
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.compress", false)
	v.SetDefault("storage.compression_type", "zstd")
	v.SetDefault("storage.compression_level", "default")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "./logs")
	v.SetDefault("log.format", "text")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" && c.Database.Type != "mysql" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.Type != "sqlite" && c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	// Storage settings are not validated here.

	if c.Run.NumRanks < 1 {
		return fmt.Errorf("num_ranks must be at least 1")
	}

	return nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	if c.Run.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Run.DataDir, 0755)
}

// GetContainerDir returns the per-run working directory for a container
// identified by name (e.g. the run UUID a CLI invocation was given).
func (c *Config) GetContainerDir(name string) string {
	return filepath.Join(c.Run.DataDir, name)
}
