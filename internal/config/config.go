// Package config provides YAML-based configuration loading for dialbook.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// DIALBOOK_TELEPHONY_AUTH_TOKEN.
const EnvPrefix = "DIALBOOK"

// Config is the top-level dialbook configuration, loaded from config.yaml.
type Config struct {
	Env        string           `yaml:"env"`
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Telephony  TelephonyConfig  `yaml:"telephony"`
	Dialogue   DialogueConfig   `yaml:"dialogue"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

// ServerConfig holds the HTTP listener settings. PublicBaseURL is the
// externally reachable address the telephony provider calls back to.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	PublicBaseURL     string `yaml:"public_base_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

// DatabaseConfig selects the gorm dialect and connection string.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// TelephonyConfig configures the outbound calling provider.
type TelephonyConfig struct {
	Provider           string `yaml:"provider"` // twilio, log
	AccountSID         string `yaml:"account_sid"`
	AuthToken          string `yaml:"auth_token"`
	FromNumber         string `yaml:"from_number"`
	APIBase            string `yaml:"api_base"`
	CallsPerMinute     int    `yaml:"calls_per_minute"`
	ValidateSignatures bool   `yaml:"validate_signatures"`
}

// DialogueConfig configures the language-model dialogue provider.
type DialogueConfig struct {
	Provider          string        `yaml:"provider"` // gemini, scripted
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	Language          string        `yaml:"language"` // en, de
	Timeout           time.Duration `yaml:"timeout"`
	ClassifyWithModel bool          `yaml:"classify_with_model"`
}

// SessionsConfig controls dialogue session expiry and optional snapshots.
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepSchedule string        `yaml:"sweep_schedule"`
	Redis         RedisConfig   `yaml:"redis"`
}

// RedisConfig enables session snapshots when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// CalendarConfig bounds event-creation retries.
type CalendarConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SchedulingConfig holds the zone candidate dates are interpreted in.
type SchedulingConfig struct {
	Timezone string `yaml:"timezone"`
}

// AlertsConfig configures operator notifications. Both targets are optional.
type AlertsConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelID string `yaml:"discord_channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped; existing variables win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overlays DIALBOOK_* environment variables. Secrets are expected to
// arrive this way rather than through the YAML file.
func (c *Config) applyEnv() {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	strs := map[string]*string{
		"env":                       &c.Env,
		"log_level":                 &c.LogLevel,
		"server_public_base_url":    &c.Server.PublicBaseURL,
		"database_driver":           &c.Database.Driver,
		"database_dsn":              &c.Database.DSN,
		"telephony_provider":        &c.Telephony.Provider,
		"telephony_account_sid":     &c.Telephony.AccountSID,
		"telephony_auth_token":      &c.Telephony.AuthToken,
		"telephony_from_number":     &c.Telephony.FromNumber,
		"dialogue_provider":         &c.Dialogue.Provider,
		"dialogue_api_key":          &c.Dialogue.APIKey,
		"sessions_redis_addr":       &c.Sessions.Redis.Addr,
		"sessions_redis_password":   &c.Sessions.Redis.Password,
		"alerts_slack_webhook_url":  &c.Alerts.SlackWebhookURL,
		"alerts_discord_bot_token":  &c.Alerts.DiscordBotToken,
		"alerts_discord_channel_id": &c.Alerts.DiscordChannelID,
	}
	for key, dst := range strs {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	if v.IsSet("server_port") {
		if p := v.GetInt("server_port"); p > 0 {
			c.Server.Port = p
		}
	}
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestsPerMinute == 0 {
		c.Server.RequestsPerMinute = 600
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "dialbook.db"
	}
	if c.Telephony.Provider == "" {
		c.Telephony.Provider = "log"
	}
	if c.Telephony.APIBase == "" {
		c.Telephony.APIBase = "https://api.twilio.com"
	}
	if c.Telephony.CallsPerMinute == 0 {
		c.Telephony.CallsPerMinute = 30
	}
	if c.Dialogue.Provider == "" {
		c.Dialogue.Provider = "scripted"
	}
	if c.Dialogue.Model == "" {
		c.Dialogue.Model = "gemini-1.5-pro"
	}
	if c.Dialogue.Language == "" {
		c.Dialogue.Language = "en"
	}
	if c.Dialogue.Timeout == 0 {
		c.Dialogue.Timeout = 8 * time.Second
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = 10 * time.Minute
	}
	if c.Sessions.SweepSchedule == "" {
		c.Sessions.SweepSchedule = "@every 1m"
	}
	if c.Sessions.Redis.TTL == 0 {
		c.Sessions.Redis.TTL = time.Hour
	}
	if c.Calendar.MaxAttempts == 0 {
		c.Calendar.MaxAttempts = 3
	}
	if c.Calendar.RetryBackoff == 0 {
		c.Calendar.RetryBackoff = 500 * time.Millisecond
	}
	if c.Scheduling.Timezone == "" {
		c.Scheduling.Timezone = "UTC"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of sqlite, mysql, postgres", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}

	switch c.Telephony.Provider {
	case "log":
	case "twilio":
		if c.Telephony.AccountSID == "" {
			errs = append(errs, "telephony.account_sid is required for twilio")
		}
		if c.Telephony.AuthToken == "" {
			errs = append(errs, "telephony.auth_token is required for twilio")
		}
		if c.Telephony.FromNumber == "" {
			errs = append(errs, "telephony.from_number is required for twilio")
		}
	default:
		errs = append(errs, fmt.Sprintf("telephony.provider %q is not one of twilio, log", c.Telephony.Provider))
	}
	if c.Telephony.CallsPerMinute < 0 {
		errs = append(errs, "telephony.calls_per_minute must not be negative")
	}

	switch c.Dialogue.Provider {
	case "scripted":
	case "gemini":
		if c.Dialogue.APIKey == "" {
			errs = append(errs, "dialogue.api_key is required for gemini")
		}
	default:
		errs = append(errs, fmt.Sprintf("dialogue.provider %q is not one of gemini, scripted", c.Dialogue.Provider))
	}
	switch c.Dialogue.Language {
	case "en", "de":
	default:
		errs = append(errs, fmt.Sprintf("dialogue.language %q is not one of en, de", c.Dialogue.Language))
	}
	if c.Dialogue.Timeout < 0 {
		errs = append(errs, "dialogue.timeout must not be negative")
	}

	if c.Sessions.IdleTimeout < 0 {
		errs = append(errs, "sessions.idle_timeout must not be negative")
	}
	if c.Calendar.MaxAttempts < 1 {
		errs = append(errs, "calendar.max_attempts must be at least 1")
	}
	if _, err := time.LoadLocation(c.Scheduling.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("scheduling.timezone %q: %v", c.Scheduling.Timezone, err))
	}
	if c.Alerts.DiscordBotToken != "" && c.Alerts.DiscordChannelID == "" {
		errs = append(errs, "alerts.discord_channel_id is required with a discord bot token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateServe checks the settings only the webhook server needs. A missing
// callback address is a deployment error, so serve refuses to start.
func (c *Config) ValidateServe() error {
	if c.Server.PublicBaseURL == "" {
		return fmt.Errorf("config: server.public_base_url is required to receive telephony webhooks")
	}
	u, err := url.Parse(c.Server.PublicBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: server.public_base_url %q must be an absolute http(s) URL", c.Server.PublicBaseURL)
	}
	return nil
}

// Location returns the scheduling time zone. Parse has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduling.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether the config targets production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
