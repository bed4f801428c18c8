package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"behavioralsignals-sdk-go/pkg/behavioralsignals"
)

// ErrMissingCredentials is returned by Validate when USER_ID or API_KEY is unset.
var ErrMissingCredentials = errors.New("USER_ID and API_KEY must be set")

// Config is the CLI configuration, read from the environment.
type Config struct {
	Credentials   CredentialsConfig
	API           APIConfig
	Poll          PollConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

type CredentialsConfig struct {
	ClientID string
	APIKey   string
}

type APIConfig struct {
	BaseURL      string
	StreamingURL string
	UseTLS       bool
	Timeout      time.Duration
}

type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicBatch  string
	TopicStream string
	Principal   string
}

type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration. Unparseable values fall back to defaults.
func Load() *Config {
	clientID := os.Getenv("USER_ID")
	return &Config{
		Credentials: CredentialsConfig{
			ClientID: clientID,
			APIKey:   os.Getenv("API_KEY"),
		},
		API: APIConfig{
			BaseURL:      envOrDefault("BSIG_API_URL", behavioralsignals.DefaultBaseURL),
			StreamingURL: envOrDefault("BSIG_STREAMING_URL", behavioralsignals.DefaultStreamingURL),
			UseTLS:       envOrDefaultBool("BSIG_USE_TLS", true),
			Timeout:      envOrDefaultDuration("BSIG_TIMEOUT", behavioralsignals.DefaultTimeout),
		},
		Poll: PollConfig{
			Interval:    envOrDefaultDuration("BSIG_POLL_INTERVAL", behavioralsignals.DefaultPollInterval),
			MaxInterval: envOrDefaultDuration("BSIG_POLL_MAX_INTERVAL", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     envOrDefaultList("KAFKA_BROKERS", nil),
			TopicBatch:  envOrDefault("KAFKA_TOPIC_BATCH", "behavioralsignals.batch.results"),
			TopicStream: envOrDefault("KAFKA_TOPIC_STREAM", "behavioralsignals.stream.results"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", envOrDefault("USER_ID", "bsig")),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "console"),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
	}
}

// Validate checks what every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Credentials.ClientID) == "" || strings.TrimSpace(c.Credentials.APIKey) == "" {
		return ErrMissingCredentials
	}
	return nil
}

// ClientOptions maps the API section onto SDK options.
func (c *Config) ClientOptions() []behavioralsignals.Option {
	return []behavioralsignals.Option{
		behavioralsignals.WithBaseURL(c.API.BaseURL),
		behavioralsignals.WithStreamingURL(c.API.StreamingURL),
		behavioralsignals.WithTLS(c.API.UseTLS),
		behavioralsignals.WithTimeout(c.API.Timeout),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return def
		}
		return d
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
