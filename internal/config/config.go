package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/wpsteward/steward/pkg/logger"
)

const DefaultWordPressAPIURL = "https://mustudent.mahidol.ac.th/wp-json/wp/v2/posts"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logger    logger.Config   `yaml:"logger"`
	WordPress WordPressConfig `yaml:"wordpress"`
	Mail      MailConfig      `yaml:"mail"`
	Reminder  ReminderConfig  `yaml:"reminder"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Auth      AuthConfig      `yaml:"auth"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
	// Path is the sqlite file (or ":memory:") used when Type is "sqlite".
	Path string `yaml:"path"`
}

type WordPressConfig struct {
	APIURL          string `yaml:"api_url"`
	PerPage         int    `yaml:"per_page"`
	IncludeEmbedded *bool  `yaml:"include_embedded"`
	Timeout         string `yaml:"timeout"`
	// RequestsPerSecond paces page requests; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EmbedTerms reports whether _embed=true is requested by default.
func (c WordPressConfig) EmbedTerms() bool {
	return c.IncludeEmbedded == nil || *c.IncludeEmbedded
}

// MailConfig describes the SMTP transport used for reminder digests.
type MailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Secure      bool   `yaml:"secure"`
	User        string `yaml:"user"`
	Pass        string `yaml:"pass"`
	FromName    string `yaml:"from_name"`
	FromAddress string `yaml:"from_address"`
}

type ReminderConfig struct {
	CooldownMonths int    `yaml:"cooldown_months"`
	SiteName       string `yaml:"site_name"`
	ExcerptLength  int    `yaml:"excerpt_length"`
	TestGroupLimit int    `yaml:"test_group_limit"`
}

type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ReminderInterval string `yaml:"reminder_interval"`
}

type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TOTPSecret string `yaml:"totp_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5334
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "steward.db"
	}
	if cfg.WordPress.APIURL == "" {
		cfg.WordPress.APIURL = DefaultWordPressAPIURL
	}
	if cfg.WordPress.PerPage == 0 {
		cfg.WordPress.PerPage = 100
	}
	if cfg.WordPress.Timeout == "" {
		cfg.WordPress.Timeout = "30s"
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}
	if cfg.Reminder.CooldownMonths == 0 {
		cfg.Reminder.CooldownMonths = 6
	}
	if cfg.Reminder.ExcerptLength == 0 {
		cfg.Reminder.ExcerptLength = 300
	}
	if cfg.Reminder.TestGroupLimit == 0 {
		cfg.Reminder.TestGroupLimit = 5
	}
	if cfg.Scheduler.ReminderInterval == "" {
		cfg.Scheduler.ReminderInterval = "24h"
	}
	if cfg.Auth.SessionTTL == "" {
		cfg.Auth.SessionTTL = "12h"
	}
}
