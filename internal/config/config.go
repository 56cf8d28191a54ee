// Package config loads the engine's YAML configuration file and
// applies default values and environment-variable overrides on top of
// it, mirroring the teacher's LoadConfig -> applyDefaults ->
// applyEnvironmentOverrides -> ValidateConfig pipeline shape (same
// gopkg.in/yaml.v2 decoder, same override idiom) generalized from the
// log-capture domain's config surface to this engine's object-store,
// document-store, crypto and dataset-definition surface.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/nrms/data-bridge/internal/catalogue"
	"github.com/nrms/data-bridge/internal/objectstore"
	"github.com/nrms/data-bridge/pkg/apperr"
)

// Config is the engine's full runtime configuration.
type Config struct {
	App         AppConfig          `yaml:"app"`
	ObjectStore objectstore.Config `yaml:"object_store"`
	DocStore    DocStoreConfig     `yaml:"document_store"`
	Crypto      CryptoConfig       `yaml:"crypto"`
	Datasets    []DatasetConfig    `yaml:"datasets"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Tracing     TracingConfig      `yaml:"tracing"`
}

// AppConfig carries ambient process-level settings.
type AppConfig struct {
	Name         string `yaml:"name"`
	Environment  string `yaml:"environment"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	LookbackDays int    `yaml:"lookback_days"`
	CSVDelimiter string `yaml:"csv_delimiter"`
}

// DocStoreConfig configures the document-store connection.
type DocStoreConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// CryptoConfig configures the shared-salt, per-process-env password
// credential source (internal/crypto.EnvCredentialsProvider).
type CryptoConfig struct {
	Salt           string `yaml:"salt"`
	PasswordEnvVar string `yaml:"password_env_var"`
}

// DatasetConfig is the YAML-serializable form of a
// catalogue.DatasetDefinition; accumulator columns are stored as a
// plain list and converted to the definition's set form by ToDefinition.
type DatasetConfig struct {
	Name              string   `yaml:"name"`
	FilePrefixFormat  string   `yaml:"file_prefix_format"`
	DatePattern       string   `yaml:"date_pattern"`
	DatetimePattern   string   `yaml:"datetime_pattern"`
	PrimaryKeyHeaders []string `yaml:"primary_key_headers"`
	ChangeTypeHeader  string   `yaml:"change_type_header"`
	Accumulators      []string `yaml:"accumulators"`
}

// ToDefinition converts the YAML shape into the catalogue's runtime type.
func (d DatasetConfig) ToDefinition() catalogue.DatasetDefinition {
	accumulators := make(map[string]bool, len(d.Accumulators))
	for _, a := range d.Accumulators {
		accumulators[a] = true
	}

	return catalogue.DatasetDefinition{
		Name:              d.Name,
		FilePrefixFormat:  d.FilePrefixFormat,
		DatePattern:       d.DatePattern,
		DatetimePattern:   d.DatetimePattern,
		PrimaryKeyHeaders: d.PrimaryKeyHeaders,
		ChangeTypeHeader:  d.ChangeTypeHeader,
		Accumulators:      accumulators,
	}
}

// MetricsConfig configures the prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LoadConfig reads configFile (if non-empty), applies defaults for
// anything left unset, applies environment-variable overrides, then
// validates the result.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, apperr.Wrap(apperr.KindConfig, "config", "LoadConfig", "loading "+configFile, err)
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "data-bridge"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "production"
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.LogFormat == "" {
		cfg.App.LogFormat = "json"
	}
	if cfg.App.LookbackDays == 0 {
		cfg.App.LookbackDays = 100
	}
	if cfg.App.CSVDelimiter == "" {
		cfg.App.CSVDelimiter = "|"
	}

	if cfg.DocStore.Database == "" {
		cfg.DocStore.Database = "data_bridge"
	}

	if cfg.Crypto.PasswordEnvVar == "" {
		cfg.Crypto.PasswordEnvVar = "DATABRIDGE_SOURCE_PASSWORD"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9401
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("DATABRIDGE_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("DATABRIDGE_LOG_FORMAT"); v != "" {
		cfg.App.LogFormat = v
	}
	if v := os.Getenv("DATABRIDGE_LOOKBACK_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.App.LookbackDays = n
		}
	}

	if v := os.Getenv("DATABRIDGE_MONGO_URI"); v != "" {
		cfg.DocStore.URI = v
	}
	if v := os.Getenv("DATABRIDGE_MONGO_DATABASE"); v != "" {
		cfg.DocStore.Database = v
	}

	if v := os.Getenv("DATABRIDGE_CRYPTO_SALT"); v != "" {
		cfg.Crypto.Salt = v
	}

	if v := os.Getenv("DATABRIDGE_EXTERNAL_BUCKET"); v != "" {
		cfg.ObjectStore.External.Bucket = v
	}
	if v := os.Getenv("DATABRIDGE_INTERNAL_BUCKET"); v != "" {
		cfg.ObjectStore.Internal.Bucket = v
	}

	if v := os.Getenv("DATABRIDGE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = strings.EqualFold(v, "true")
	}
}

// ValidateConfig checks the structural requirements the rest of the
// engine relies on at startup: at least one dataset, a non-empty
// document-store URI, and a non-empty crypto salt.
func ValidateConfig(cfg *Config) error {
	if len(cfg.Datasets) == 0 {
		return apperr.New(apperr.KindConfig, "config", "ValidateConfig", "no datasets configured")
	}
	if cfg.DocStore.URI == "" {
		return apperr.New(apperr.KindConfig, "config", "ValidateConfig", "document_store.uri is required")
	}
	if cfg.Crypto.Salt == "" {
		return apperr.New(apperr.KindConfig, "config", "ValidateConfig", "crypto.salt is required")
	}

	return nil
}

// Delimiter returns the configured CSV delimiter as a rune, defaulting
// to pipe if misconfigured.
func (c *Config) Delimiter() rune {
	if len(c.App.CSVDelimiter) == 0 {
		return '|'
	}

	return rune(c.App.CSVDelimiter[0])
}

// Definitions converts every configured dataset into its runtime form.
func (c *Config) Definitions() []catalogue.DatasetDefinition {
	defs := make([]catalogue.DatasetDefinition, 0, len(c.Datasets))
	for _, d := range c.Datasets {
		defs = append(defs, d.ToDefinition())
	}

	return defs
}
