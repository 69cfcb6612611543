// Package config loads the runtime configuration from an optional YAML file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is passed by value into every constructor that needs it.
type Config struct {
	Akahu    AkahuConfig    `yaml:"akahu"`
	YNAB     YNABConfig     `yaml:"ynab"`
	Actual   ActualConfig   `yaml:"actual"`
	Sync     SyncConfig     `yaml:"sync"`
	Mapping  MappingConfig  `yaml:"mapping"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Redis    RedisConfig    `yaml:"redis"`
	Notion   NotionConfig   `yaml:"notion"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type AkahuConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UserToken string `yaml:"user_token"`
	AppToken  string `yaml:"app_token"`
}

type YNABConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Enabled  bool   `yaml:"enabled"`
}

type ActualConfig struct {
	BridgeURL string `yaml:"bridge_url"`
	APIKey    string `yaml:"api_key"`
	Enabled   bool   `yaml:"enabled"`
}

// SyncConfig holds per-pass switches.
type SyncConfig struct {
	ForceRefresh bool `yaml:"force_refresh"`
	// Debug is "all", a single source transaction id, or empty.
	Debug string `yaml:"debug"`
}

// MappingConfig selects where the account mapping lives. GCSURI wins over File.
type MappingConfig struct {
	File   string `yaml:"file"`
	GCSURI string `yaml:"gcs_uri"`
}

type BigQueryConfig struct {
	ProjectID string `yaml:"project_id"`
	Dataset   string `yaml:"dataset"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type NotionConfig struct {
	Token            string `yaml:"token"`
	ReportDatabaseID string `yaml:"report_database_id"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type HTTPConfig struct {
	Port     string `yaml:"port"`
	APIToken string `yaml:"api_token"`
	// ScheduleInterval enqueues a pass periodically when > 0.
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Akahu:    AkahuConfig{Endpoint: "https://api.akahu.io/v1"},
		YNAB:     YNABConfig{Endpoint: "https://api.ynab.com/v1", Enabled: true},
		Actual:   ActualConfig{Enabled: true},
		Mapping:  MappingConfig{File: "akahu_budget_mapping.json"},
		BigQuery: BigQueryConfig{Dataset: "budget_sync"},
		Log:      LogConfig{Level: "info"},
		HTTP:     HTTPConfig{Port: "8080"},
	}
}

// Load reads path (if non-empty) over Default and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("Load: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("Load: parsing %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, fmt.Errorf("Load: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("AKAHU_ENDPOINT", &c.Akahu.Endpoint)
	str("AKAHU_USER_TOKEN", &c.Akahu.UserToken)
	str("AKAHU_APP_TOKEN", &c.Akahu.AppToken)
	str("YNAB_ENDPOINT", &c.YNAB.Endpoint)
	str("YNAB_BEARER_TOKEN", &c.YNAB.Token)
	str("ACTUAL_BRIDGE_URL", &c.Actual.BridgeURL)
	str("ACTUAL_API_KEY", &c.Actual.APIKey)
	boolean("RUN_SYNC_TO_YNAB", &c.YNAB.Enabled)
	boolean("RUN_SYNC_TO_AB", &c.Actual.Enabled)
	boolean("FORCE_REFRESH", &c.Sync.ForceRefresh)
	str("DEBUG_SYNC", &c.Sync.Debug)
	str("MAPPING_FILE", &c.Mapping.File)
	str("MAPPING_GCS_URI", &c.Mapping.GCSURI)
	str("BIGQUERY_PROJECT", &c.BigQuery.ProjectID)
	str("BIGQUERY_DATASET", &c.BigQuery.Dataset)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("NOTION_TOKEN", &c.Notion.Token)
	str("NOTION_REPORT_DB_ID", &c.Notion.ReportDatabaseID)
	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_JSON", &c.Log.JSON)
	str("PORT", &c.HTTP.Port)
	str("API_TOKEN", &c.HTTP.APIToken)

	if v, ok := lookup("SCHEDULE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULE_INTERVAL: %w", err))
		} else {
			c.HTTP.ScheduleInterval = d
		}
	}
	return errors.Join(errs...)
}

// AkahuHeaders returns the fixed auth headers for the source feed.
func (c Config) AkahuHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.Akahu.UserToken,
		"X-Akahu-Id":    c.Akahu.AppToken,
	}
}

// YNABHeaders returns the fixed auth headers for the YNAB API.
func (c Config) YNABHeaders() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.YNAB.Token,
	}
}

// Validate reports every missing endpoint or credential for the enabled destinations.
func (c Config) Validate() error {
	var errs []error
	if c.Akahu.Endpoint == "" {
		errs = append(errs, errors.New("akahu endpoint is required"))
	}
	if c.Akahu.UserToken == "" || c.Akahu.AppToken == "" {
		errs = append(errs, errors.New("akahu user and app tokens are required"))
	}
	if c.YNAB.Enabled {
		if c.YNAB.Endpoint == "" {
			errs = append(errs, errors.New("ynab endpoint is required when ynab sync is enabled"))
		}
		if c.YNAB.Token == "" {
			errs = append(errs, errors.New("ynab token is required when ynab sync is enabled"))
		}
	}
	if c.Actual.Enabled && c.Actual.BridgeURL == "" {
		errs = append(errs, errors.New("actual bridge url is required when actual sync is enabled"))
	}
	if c.Mapping.File == "" && c.Mapping.GCSURI == "" {
		errs = append(errs, errors.New("a mapping file or gcs uri is required"))
	}
	return errors.Join(errs...)
}
