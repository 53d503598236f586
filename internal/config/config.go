// Package config loads docket settings from a config file, the environment
// (DOCKET_*) and defaults, in increasing order of precedence: defaults,
// file, environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jward/docket/scrape"
)

// EnvPrefix prefixes every environment override, e.g. DOCKET_DATABASE_DSN.
const EnvPrefix = "DOCKET"

// DefaultPath is the config file read when none is given.
const DefaultPath = "~/.docket/config.yaml"

type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Import   ImportConfig   `mapstructure:"import" yaml:"import"`
}

// DatabaseConfig selects the store. A DSN starting with postgres:// uses
// PostgreSQL; anything else is a SQLite file path.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

type ImportConfig struct {
	Jurisdiction string `mapstructure:"jurisdiction" yaml:"jurisdiction"`
	// AtomicRun imports the whole batch in one transaction.
	AtomicRun bool `mapstructure:"atomic_run" yaml:"atomic_run"`
	// AtomicTypes lists entity types whose import stops at the first
	// failed record.
	AtomicTypes []string `mapstructure:"atomic_types" yaml:"atomic_types"`
	ScriptsDir  string   `mapstructure:"scripts_dir" yaml:"scripts_dir"`
	// Workers bounds concurrent file decoding; 0 means GOMAXPROCS.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// SetDefaults registers default values. Every key needs a default so that
// environment overrides are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "~/.docket/docket.db")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "docket")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("import.jurisdiction", "")
	v.SetDefault("import.atomic_run", false)
	v.SetDefault("import.atomic_types", []string{})
	v.SetDefault("import.scripts_dir", "")
	v.SetDefault("import.workers", 0)
}

// NewViper returns a viper instance with defaults and DOCKET_ environment
// binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewDefaultConfig returns the defaults without reading files or the
// environment.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: unmarshal defaults: %v", err))
	}
	return &cfg
}

// Load reads path, or DefaultPath when path is empty, and applies the
// environment. An explicit path must exist; a missing default file is not
// an error.
func Load(path string) (*Config, error) {
	v := NewViper()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("config: expand %s: %w", path, err)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("config: read %s: %w", expanded, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes v, expands "~" in paths and validates the result.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expand() error {
	var err error
	if !strings.Contains(c.Database.DSN, "://") {
		if c.Database.DSN, err = homedir.Expand(c.Database.DSN); err != nil {
			return fmt.Errorf("config: database.dsn: %w", err)
		}
	}
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("config: logger.log_file: %w", err)
	}
	if c.Import.ScriptsDir, err = homedir.Expand(c.Import.ScriptsDir); err != nil {
		return fmt.Errorf("config: import.scripts_dir: %w", err)
	}
	return nil
}

var entityTypes = []string{
	scrape.TypeJurisdiction,
	scrape.TypeOrganization,
	scrape.TypePerson,
	scrape.TypeMembership,
	scrape.TypeBill,
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if _, err := zap.ParseAtomicLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level: %w", err)
	}
	if c.Logger.Format != "console" && c.Logger.Format != "json" {
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Import.Workers < 0 {
		return errors.New("import.workers must not be negative")
	}
	for _, t := range c.Import.AtomicTypes {
		if !slices.Contains(entityTypes, t) {
			return fmt.Errorf("import.atomic_types: unknown entity type %q", t)
		}
	}
	if c.Import.Jurisdiction != "" && !strings.HasPrefix(c.Import.Jurisdiction, "ocd-jurisdiction/") {
		return fmt.Errorf("import.jurisdiction must be an ocd-jurisdiction id, got %q", c.Import.Jurisdiction)
	}
	return nil
}

// LoadDotEnv loads variables from a .env file into the environment without
// overriding variables already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
