package config

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Scorer   ScorerConfig    `mapstructure:"scorer"`
	SMTP     SMTPConfig      `mapstructure:"smtp"`
	CORS     CORSConfig      `mapstructure:"cors"`
	Logs     LogIngestConfig `mapstructure:"logs"`
	Trends   TrendsConfig    `mapstructure:"trends"`
	Secrets  Secrets         `mapstructure:"-"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
	MinTLSMode     string `mapstructure:"min_tls_mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type ScorerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	BreakerTimeout time.Duration `mapstructure:"breaker_timeout"`
	MaxFailures    int           `mapstructure:"max_failures"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	From     string `mapstructure:"from"`
}

type CORSConfig struct {
	FrontendOrigin string `mapstructure:"frontend_origin"`
}

type LogIngestConfig struct {
	MaxBatchSize int `mapstructure:"max_batch_size"`
}

type TrendsConfig struct {
	MaxOwners int `mapstructure:"max_owners"`
}

// Secrets are env-only and never read from the config file. EncryptionKey is
// loaded once at startup; the derived key material is immutable afterwards.
type Secrets struct {
	EncryptionKey string `envconfig:"ENCRYPTION_KEY" required:"true"`
	TokenSecret   string `envconfig:"TOKEN_SECRET" required:"true"`
	TokenIssuer   string `envconfig:"TOKEN_ISSUER" default:"diarisk"`
	SMTPPassword  string `envconfig:"SMTP_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("server.min_tls_mode", "1.2")
	viper.SetDefault("scorer.timeout", 5*time.Second)
	viper.SetDefault("scorer.breaker_timeout", 30*time.Second)
	viper.SetDefault("scorer.max_failures", 5)
	viper.SetDefault("logs.max_batch_size", 100)
	viper.SetDefault("trends.max_owners", 5000)

	if err := viper.ReadInConfig(); err != nil {
		// Defaults plus environment are enough to run; only a malformed
		// file is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to load secrets from environment: %w", err)
	}

	return &config, nil
}

// MinTLSVersion maps the configured mode onto a crypto/tls constant.
func (c ServerConfig) MinTLSVersion() uint16 {
	switch c.MinTLSMode {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
