// Package config provides configuration loading for the API server.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Actions    ActionsConfig    `mapstructure:"actions"`
	Forms      FormsConfig      `mapstructure:"forms"`
	Mail       MailConfig       `mapstructure:"mail"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type NATSConfig struct {
	URL      string `mapstructure:"url"`
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	Token    string `mapstructure:"token"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type ProvidersConfig struct {
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	// SplitterModel is the fixed deployment used by the message splitter.
	SplitterModel string `mapstructure:"splitter_model"`
	// EmbeddingModel is the fixed embedding deployment.
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type RetrievalConfig struct {
	// BaseURL of the knowledge-base query service.
	BaseURL  string  `mapstructure:"base_url"`
	APIKey   string  `mapstructure:"api_key"`
	TopK     int     `mapstructure:"top_k"`
	MinScore float64 `mapstructure:"min_score"`
}

type ExtractionConfig struct {
	// BaseURL of the document text-extraction service.
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type FormsConfig struct {
	// BaseURL hosting the end-user form pages and submission endpoint.
	BaseURL string `mapstructure:"base_url"`
}

type ActionsConfig struct {
	// BaseURL of the third-party action-execution service.
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	StartTLS bool   `mapstructure:"starttls"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load reads configuration from the optional config file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("jwt.secret", "development-secret-change-in-production")
	v.SetDefault("jwt.expiration", 15*time.Minute)
	v.SetDefault("providers.splitter_model", "gpt-4o-mini")
	v.SetDefault("providers.embedding_model", "text-embedding-3-small")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.min_score", 0.65)
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.starttls", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")

	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Common deployment environment variables win over the file.
	if key := v.GetString("OPENAI_API_KEY"); key != "" {
		config.Providers.OpenAIAPIKey = key
	}
	if key := v.GetString("ANTHROPIC_API_KEY"); key != "" {
		config.Providers.AnthropicAPIKey = key
	}
	if secret := v.GetString("JWT_SECRET"); secret != "" {
		config.JWT.Secret = secret
	}
	if url := v.GetString("NATS_URL"); url != "" {
		config.NATS.URL = url
	}
	if port := v.GetString("PORT"); port != "" {
		config.Server.Port = port
	}

	return &config, nil
}
