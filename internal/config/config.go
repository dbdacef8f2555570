// Package config loads service configuration from .env, an optional YAML
// file and CC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kidandcat/communityconnect/internal/aging"
)

type Config struct {
	Addr        string   `mapstructure:"addr"`
	BaseURL     string   `mapstructure:"base_url"`
	DataDir     string   `mapstructure:"data_dir"`
	AdminEmails []string `mapstructure:"admin_emails"`

	Log     LogConfig     `mapstructure:"log"`
	Email   EmailConfig   `mapstructure:"email"`
	Session SessionConfig `mapstructure:"session"`
	Feeds   FeedsConfig   `mapstructure:"feeds"`
	Aging   AgingConfig   `mapstructure:"aging"`
	Ads     AdsConfig     `mapstructure:"ads"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type EmailConfig struct {
	FromEmail    string `mapstructure:"from_email"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	SMTPEnabled  bool   `mapstructure:"smtp_enabled"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     string `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPass     string `mapstructure:"smtp_pass"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type FeedsConfig struct {
	TrafficURL    string `mapstructure:"traffic_url"`
	TrafficAPIKey string `mapstructure:"traffic_api_key"`
	EmergencyURL  string `mapstructure:"emergency_url"`
	// RefreshSchedule is a cron spec, e.g. "@every 2m".
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
	Timeout         time.Duration `mapstructure:"timeout"`
	// UserPostWindow bounds how far back user posts are merged into the feed.
	UserPostWindow time.Duration `mapstructure:"user_post_window"`
}

type AgingConfig struct {
	MinOpacity float64 `mapstructure:"min_opacity"`
	// Hours overrides the medium-severity lifetime per category.
	Hours map[string]float64 `mapstructure:"hours"`
}

type AdsConfig struct {
	// Interval places one sponsored item after every Interval incidents.
	Interval int `mapstructure:"interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:    ":8080",
		BaseURL: "http://localhost:8080",
		DataDir: "data",
		Log: LogConfig{
			Level: "info",
		},
		Email: EmailConfig{
			FromEmail: "Community Connect <alerts@resend.dev>",
			SMTPPort:  "587",
		},
		Session: SessionConfig{
			CookieName: "cc_session",
			TTL:        30 * 24 * time.Hour,
		},
		Feeds: FeedsConfig{
			TrafficURL:      "https://api.qldtraffic.qld.gov.au/v2/events",
			EmergencyURL:    "https://publiccontent-gis-psba-qld-gov-au.s3.amazonaws.com/content/Feeds/ESCAD/ESCAD_Current_Incidents.geojson",
			RefreshSchedule: "@every 2m",
			Timeout:         15 * time.Second,
			UserPostWindow:  7 * 24 * time.Hour,
		},
		Aging: AgingConfig{
			MinOpacity: aging.DefaultMinOpacity,
		},
		Ads: AdsConfig{
			Interval: 5,
		},
	}
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if _, err := cron.ParseStandard(c.Feeds.RefreshSchedule); err != nil {
		return fmt.Errorf("feeds.refresh_schedule: %w", err)
	}
	if c.Feeds.Timeout <= 0 {
		return errors.New("feeds.timeout must be positive")
	}
	if c.Feeds.UserPostWindow <= 0 {
		return errors.New("feeds.user_post_window must be positive")
	}
	if _, err := c.AgingPolicy(); err != nil {
		return fmt.Errorf("aging: %w", err)
	}
	if c.Ads.Interval < 1 {
		return errors.New("ads.interval must be at least 1")
	}
	return nil
}

// AgingPolicy builds the aging policy described by the config.
func (c *Config) AgingPolicy() (*aging.Policy, error) {
	return aging.NewPolicy(c.Aging.Hours, c.Aging.MinOpacity)
}

// IsAdminEmail reports whether email is listed in admin_emails.
func (c *Config) IsAdminEmail(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	for _, a := range c.AdminEmails {
		if strings.TrimSpace(strings.ToLower(a)) == email && email != "" {
			return true
		}
	}
	return false
}

// Loader owns the viper instance so the config can be re-read on change.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader prepares a loader. configFile may be empty, in which case
// ./config.yaml is used when present.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names still used by existing deployments.
	_ = v.BindEnv("base_url", "CC_BASE_URL", "PORTAL_BASE_URL")
	_ = v.BindEnv("email.from_email", "CC_EMAIL_FROM_EMAIL", "PORTAL_FROM_EMAIL")
	_ = v.BindEnv("email.resend_api_key", "CC_EMAIL_RESEND_API_KEY", "RESEND_API_KEY")
	_ = v.BindEnv("email.smtp_enabled", "CC_EMAIL_SMTP_ENABLED", "SMTP_ENABLED")
	_ = v.BindEnv("email.smtp_host", "CC_EMAIL_SMTP_HOST", "SMTP_HOST")
	_ = v.BindEnv("email.smtp_port", "CC_EMAIL_SMTP_PORT", "SMTP_PORT")
	_ = v.BindEnv("email.smtp_user", "CC_EMAIL_SMTP_USER", "SMTP_USER")
	_ = v.BindEnv("email.smtp_pass", "CC_EMAIL_SMTP_PASS", "SMTP_PASS")
	_ = v.BindEnv("feeds.traffic_api_key", "CC_FEEDS_TRAFFIC_API_KEY", "QLDTRAFFIC_API_KEY")

	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("admin_emails", d.AdminEmails)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	v.SetDefault("email.from_email", d.Email.FromEmail)
	v.SetDefault("email.resend_api_key", d.Email.ResendAPIKey)
	v.SetDefault("email.smtp_enabled", d.Email.SMTPEnabled)
	v.SetDefault("email.smtp_host", d.Email.SMTPHost)
	v.SetDefault("email.smtp_port", d.Email.SMTPPort)
	v.SetDefault("email.smtp_user", d.Email.SMTPUser)
	v.SetDefault("email.smtp_pass", d.Email.SMTPPass)
	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.ttl", d.Session.TTL)
	v.SetDefault("feeds.traffic_url", d.Feeds.TrafficURL)
	v.SetDefault("feeds.traffic_api_key", d.Feeds.TrafficAPIKey)
	v.SetDefault("feeds.emergency_url", d.Feeds.EmergencyURL)
	v.SetDefault("feeds.refresh_schedule", d.Feeds.RefreshSchedule)
	v.SetDefault("feeds.timeout", d.Feeds.Timeout)
	v.SetDefault("feeds.user_post_window", d.Feeds.UserPostWindow)
	v.SetDefault("aging.min_opacity", d.Aging.MinOpacity)
	v.SetDefault("ads.interval", d.Ads.Interval)
}

// BindFlags lets command line flags override file and env values. Flag
// names use dashes; config keys use underscores.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"addr":     "addr",
		"base_url": "base-url",
		"data_dir": "data-dir",
	} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads .env, the config file if any, and the environment.
func (l *Loader) Load() (*Config, error) {
	// A missing .env is the normal case outside development.
	_ = godotenv.Load()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ConfigFile returns the path of the file that was read, if any.
func (l *Loader) ConfigFile() string { return l.v.ConfigFileUsed() }

// Watch calls fn with the re-read config every time the config file
// changes. Invalid edits are reported to onErr and otherwise ignored.
func (l *Loader) Watch(fn func(*Config), onErr func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(cfg)
	})
	l.v.WatchConfig()
}
