// Package config loads application configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Version is set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Search      SearchConfig      `mapstructure:"search"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Metadata    MetadataConfig    `mapstructure:"metadata"`
	Debrid      DebridConfig      `mapstructure:"debrid"`
	Reputation  ReputationConfig  `mapstructure:"reputation"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Library     LibraryConfig     `mapstructure:"library"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// AuthConfig holds authentication configuration for the local API.
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	PasswordHash string `mapstructure:"password_hash"`
}

// SearchConfig holds search orchestration configuration.
type SearchConfig struct {
	MinScore      float64       `mapstructure:"min_score"`
	MaxResults    int           `mapstructure:"max_results"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
}

// SourcesConfig holds per-site base URLs. Mirror domains rotate, so these
// are configurable rather than hardcoded.
type SourcesConfig struct {
	FitGirlURL    string `mapstructure:"fitgirl_url"`
	ElAmigosURL   string `mapstructure:"elamigos_url"`
	AggregatorURL string `mapstructure:"aggregator_url"`
	FallbackURL   string `mapstructure:"fallback_url"`
}

// MetadataConfig holds canonical-title lookup configuration.
type MetadataConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DebridConfig holds debrid resolver configuration.
type DebridConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// ReputationConfig holds hash reputation lookup configuration.
// An empty API key disables lookups; unknown hashes are treated as clean.
type ReputationConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// AcquisitionConfig holds acquisition pipeline configuration.
type AcquisitionConfig struct {
	DownloadDir        string        `mapstructure:"download_dir"`
	ExtractTool        string        `mapstructure:"extract_tool"`
	ProcessWaitTimeout time.Duration `mapstructure:"process_wait_timeout"`
	ProcessPollEvery   time.Duration `mapstructure:"process_poll_every"`
	VerifyAttempts     int           `mapstructure:"verify_attempts"`
	VerifyInterval     time.Duration `mapstructure:"verify_interval"`
}

// LibraryConfig holds game library configuration.
type LibraryConfig struct {
	InstallRoot    string        `mapstructure:"install_root"`
	RescanInterval time.Duration `mapstructure:"rescan_interval"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.gamedock")
	}

	v.SetEnvPrefix("GAMEDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7455)

	v.SetDefault("database.path", "./data/gamedock.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "./logs")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.password_hash", "")

	v.SetDefault("search.min_score", 40.0)
	v.SetDefault("search.max_results", 20)
	v.SetDefault("search.source_timeout", 30*time.Second)
	v.SetDefault("search.fetch_timeout", 15*time.Second)

	v.SetDefault("sources.fitgirl_url", "https://fitgirl-repacks.site")
	v.SetDefault("sources.elamigos_url", "https://elamigos.site")
	v.SetDefault("sources.aggregator_url", "https://1337x.to")
	v.SetDefault("sources.fallback_url", "https://thepiratebay.org")

	v.SetDefault("metadata.base_url", "https://api.rawg.io/api")

	v.SetDefault("debrid.base_url", "https://api.real-debrid.com/rest/1.0")
	v.SetDefault("debrid.poll_attempts", 30)
	v.SetDefault("debrid.poll_interval", 2*time.Second)

	v.SetDefault("reputation.base_url", "https://www.virustotal.com/api/v3")

	v.SetDefault("acquisition.download_dir", "./data/downloads")
	v.SetDefault("acquisition.extract_tool", "7z")
	v.SetDefault("acquisition.process_wait_timeout", time.Hour)
	v.SetDefault("acquisition.process_poll_every", 2*time.Second)
	v.SetDefault("acquisition.verify_attempts", 5)
	v.SetDefault("acquisition.verify_interval", 2*time.Second)

	v.SetDefault("library.install_root", "")
	v.SetDefault("library.rescan_interval", 30*time.Minute)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
