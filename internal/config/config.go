// Package config loads valmetrics configuration.
//
// Precedence, lowest to highest: built-in defaults, an optional YAML file,
// then environment variables (a .env file in the working directory is read
// into the environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/pable/go-val-metrics/internal/extract"
	"github.com/pable/go-val-metrics/internal/roster"
	"github.com/pable/go-val-metrics/internal/storage"
)

// ConfigPathEnvVar names the environment variable holding the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{"valmetrics.yaml", "valmetrics.yml", "config/valmetrics.yaml"}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Extractor ExtractorConfig `koanf:"extractor"`
	Roster    RosterConfig    `koanf:"roster"`
	Logging   LoggingConfig   `koanf:"logging"`
	Ingest    IngestConfig    `koanf:"ingest"`
}

type ServerConfig struct {
	Addr      string `koanf:"addr" validate:"required"`
	StaticDir string `koanf:"static_dir"`
	// MaxUploadBytes caps the multipart body of an upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes" validate:"gt=0"`
	// UploadsPerMinute is the per-IP upload limit; 0 disables it.
	UploadsPerMinute int           `koanf:"uploads_per_minute" validate:"gte=0"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	ReadTimeout      time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout     time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"required"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `koanf:"dsn" validate:"required"`
}

type ExtractorConfig struct {
	Command         string        `koanf:"command" validate:"required"`
	Args            []string      `koanf:"args"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gte=0"`
}

type CohortConfig struct {
	Players []string `koanf:"players" validate:"min=1,dive,required"`
	IGL     string   `koanf:"igl" validate:"required"`
}

type RosterConfig struct {
	Male   CohortConfig `koanf:"male"`
	Female CohortConfig `koanf:"female"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type IngestConfig struct {
	TempDir         string `koanf:"temp_dir"`
	AllowDuplicates bool   `koanf:"allow_duplicates"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	ext := extract.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Addr:             ":3000",
			MaxUploadBytes:   20 << 20,
			UploadsPerMinute: 30,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     2 * time.Minute,
			ShutdownTimeout:  15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    DefaultDBPath(),
		},
		Extractor: ExtractorConfig{
			Command:         ext.Command,
			Args:            ext.Args,
			Timeout:         ext.Timeout,
			BreakerFailures: ext.BreakerFailures,
			BreakerCooldown: ext.BreakerCooldown,
		},
		Roster: RosterConfig{
			Male:   CohortConfig{Players: roster.DefaultMale.Players, IGL: roster.DefaultMale.IGL},
			Female: CohortConfig{Players: roster.DefaultFemale.Players, IGL: roster.DefaultFemale.IGL},
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// DefaultDBPath is ~/.valmetrics/metrics.db.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".valmetrics", "metrics.db")
}

// Load builds the configuration. path overrides CONFIG_PATH and the default
// search; a missing explicit path is an error, a missing default file is not.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeys maps environment variables onto config paths. Unlisted variables
// are ignored.
var envKeys = map[string]string{
	"http_addr":                  "server.addr",
	"static_dir":                 "server.static_dir",
	"upload_max_bytes":           "server.max_upload_bytes",
	"uploads_per_minute":         "server.uploads_per_minute",
	"cors_origins":               "server.cors_origins",
	"db_driver":                  "database.driver",
	"db_dsn":                     "database.dsn",
	"database_url":               "database.dsn",
	"extractor_command":          "extractor.command",
	"extractor_args":             "extractor.args",
	"extractor_timeout":          "extractor.timeout",
	"extractor_breaker_failures": "extractor.breaker_failures",
	"extractor_breaker_cooldown": "extractor.breaker_cooldown",
	"male_players":               "roster.male.players",
	"male_igl":                   "roster.male.igl",
	"female_players":             "roster.female.players",
	"female_igl":                 "roster.female.igl",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"ingest_temp_dir":            "ingest.temp_dir",
	"ingest_allow_duplicates":    "ingest.allow_duplicates",
}

func envTransformFunc(key string) string {
	return envKeys[strings.ToLower(key)]
}

var sliceConfigPaths = []string{
	"server.cors_origins",
	"extractor.args",
	"roster.male.players",
	"roster.female.players",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the rosters form a valid registry.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if _, err := storage.ParseDriver(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the roster registry from the configured cohorts.
func (c *Config) Registry() (*roster.Registry, error) {
	return roster.New(
		roster.Cohort{Players: c.Roster.Male.Players, IGL: c.Roster.Male.IGL},
		roster.Cohort{Players: c.Roster.Female.Players, IGL: c.Roster.Female.IGL},
	)
}

// ExtractConfig converts the extractor section.
func (c *Config) ExtractConfig() extract.Config {
	return extract.Config{
		Command:         c.Extractor.Command,
		Args:            c.Extractor.Args,
		Timeout:         c.Extractor.Timeout,
		BreakerFailures: c.Extractor.BreakerFailures,
		BreakerCooldown: c.Extractor.BreakerCooldown,
	}
}
