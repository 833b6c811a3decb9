package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DatabaseURL string          `mapstructure:"database_url"`
	ServerPort  string          `mapstructure:"server_port"`
	Email       EmailConfig     `mapstructure:"email"`
	SMS         SMSConfig       `mapstructure:"sms"`
	Batch       BatchConfig     `mapstructure:"batch"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Templates   TemplateConfig  `mapstructure:"templates"`
	Webhooks    WebhookConfig   `mapstructure:"webhooks"`
}

type EmailConfig struct {
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	APIBaseURL string `mapstructure:"api_base_url"`
	MaxLength  int    `mapstructure:"max_length"`
}

type BatchConfig struct {
	Size       int           `mapstructure:"size"`
	ChunkDelay time.Duration `mapstructure:"chunk_delay"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchLimit   int           `mapstructure:"batch_limit"`
}

type TemplateConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type WebhookConfig struct {
	// Shared secrets for HMAC verification of provider callbacks, keyed by
	// provider name. An empty secret disables verification for that provider.
	Secrets map[string]string `mapstructure:"secrets"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}
	if config.SMS.APIBaseURL == "" {
		config.SMS.APIBaseURL = "https://api.twilio.com/2010-04-01"
	}
	if config.SMS.MaxLength == 0 {
		config.SMS.MaxLength = 160
	}
	if config.Batch.Size == 0 {
		config.Batch.Size = 50
	}
	if config.Batch.ChunkDelay == 0 {
		config.Batch.ChunkDelay = time.Second
	}
	if config.Scheduler.PollInterval == 0 {
		config.Scheduler.PollInterval = time.Minute
	}
	if config.Scheduler.BatchLimit == 0 {
		config.Scheduler.BatchLimit = 100
	}
	if config.Templates.CacheTTL == 0 {
		config.Templates.CacheTTL = 5 * time.Minute
	}

	return &config
}
