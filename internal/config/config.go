package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/household-energy-dashboard/internal/common"
)

// DefaultConfigFile is read when CONFIG_FILE is not set. A missing default
// file is not an error; a missing explicit one is.
const DefaultConfigFile = "config.json"

// StoreConfig identifies the container holding the sensor objects.
type StoreConfig struct {
	Backend          string `yaml:"backend" validate:"oneof=azure s3"`
	ConnectionString string `yaml:"connection_string" validate:"required_if=Backend azure"`
	ContainerName    string `yaml:"container_name" validate:"required"`
	ObjectPrefix     string `yaml:"object_prefix"`
	S3Region         string `yaml:"s3_region"`
	S3Endpoint       string `yaml:"s3_endpoint" validate:"omitempty,url"`
}

type AppConfig struct {
	Store StoreConfig `yaml:",inline"`

	// RefreshInterval controls how often the household table is rebuilt.
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gt=0"`
	// FetchTimeout bounds one listing + download pass.
	FetchTimeout     time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	FetchConcurrency int           `yaml:"fetch_concurrency" validate:"min=1"`
	// DateFilters keep only objects whose name contains one of the values.
	DateFilters  []string `yaml:"date_filters"`
	StrictDecode bool     `yaml:"strict_decode"`

	RetryMax         int           `yaml:"retry_max" validate:"min=0"`
	RetryInitial     time.Duration `yaml:"retry_initial" validate:"gt=0"`
	RetryMaxInterval time.Duration `yaml:"retry_max_interval"`

	Port      string `yaml:"port" validate:"required,numeric"`
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`
}

var validate = validator.New()

// Load reads configuration from the config file (if any) and the
// environment, which takes precedence, with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found or error loading it", "error", err)
	}

	cfg := defaults()

	path, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit {
		path = DefaultConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *AppConfig {
	return &AppConfig{
		Store: StoreConfig{
			Backend: "azure",
		},
		RefreshInterval:  5 * time.Minute,
		FetchTimeout:     2 * time.Minute,
		FetchConcurrency: 8,
		RetryMax:         3,
		RetryInitial:     500 * time.Millisecond,
		RetryMaxInterval: 5 * time.Second,
		Port:             "8080",
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// loadFile overlays a YAML or JSON file onto cfg.
func (c *AppConfig) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, c)
}

func (c *AppConfig) applyEnv() error {
	c.Store.Backend = getenvDefault("STORE_BACKEND", c.Store.Backend)
	c.Store.ConnectionString = getenvDefault("AZURE_STORAGE_CONNECTION_STRING", c.Store.ConnectionString)
	c.Store.ContainerName = getenvDefault("CONTAINER_NAME", c.Store.ContainerName)
	c.Store.ObjectPrefix = getenvDefault("OBJECT_PREFIX", c.Store.ObjectPrefix)
	c.Store.S3Region = getenvDefault("S3_REGION", c.Store.S3Region)
	c.Store.S3Endpoint = getenvDefault("S3_ENDPOINT", c.Store.S3Endpoint)

	var err error
	if c.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", c.RefreshInterval); err != nil {
		return err
	}
	if c.FetchTimeout, err = getenvDuration("FETCH_TIMEOUT", c.FetchTimeout); err != nil {
		return err
	}
	if c.RetryInitial, err = getenvDuration("RETRY_INITIAL", c.RetryInitial); err != nil {
		return err
	}
	if c.RetryMaxInterval, err = getenvDuration("RETRY_MAX_INTERVAL", c.RetryMaxInterval); err != nil {
		return err
	}

	c.FetchConcurrency = getenvInt("FETCH_CONCURRENCY", c.FetchConcurrency)
	c.RetryMax = getenvInt("RETRY_MAX", c.RetryMax)

	if v := os.Getenv("DATE_FILTERS"); v != "" {
		c.DateFilters = common.SplitList(v)
	}
	if v := os.Getenv("STRICT_DECODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid STRICT_DECODE: %w", err)
		}
		c.StrictDecode = b
	}

	c.Port = getenvDefault("PORT", c.Port)
	c.LogLevel = getenvDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenvDefault("LOG_FORMAT", c.LogFormat)
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
