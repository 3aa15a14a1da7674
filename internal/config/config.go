// Package config reads bosun's process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"bosun/internal/gateway"
	"bosun/internal/ingest"
	pkgconfig "bosun/pkg/config"
	"bosun/pkg/llm"
)

type Config struct {
	DatabaseURL string
	RedisURL    string

	KafkaBrokers   []string `validate:"min=1,dive,hostname_port"`
	KafkaJobsTopic string   `validate:"required"`
	KafkaDLQTopic  string   `validate:"required,nefield=KafkaJobsTopic"`
	KafkaGroupID   string   `validate:"required"`
	KafkaClientID  string

	LLM       llm.Config
	Embedding llm.Config
	AllowMock bool

	FieldEncryptionKey string
	JWTSecret          string
	ServiceToken       string

	PlatformAPIURL   string `validate:"omitempty,url"`
	PlatformAPIToken string
	PlatformTimeout  time.Duration

	OutboundRatePerMinute int    `validate:"gte=0"`
	Port                  string `validate:"required,numeric"`

	LinkBatchSize      int `validate:"gte=1,lte=500"`
	LinkCandidateLimit int `validate:"gte=1,lte=200"`

	JobTimeout time.Duration `validate:"gt=0"`
}

// Load reads the environment. Call pkg/config.LoadEnv first to pick up .env files.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: pkgconfig.GetEnv("DATABASE_URL", ""),
		RedisURL:    pkgconfig.GetEnv("REDIS_URL", ""),

		KafkaBrokers:   pkgconfig.GetEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaJobsTopic: pkgconfig.GetEnv("KAFKA_JOBS_TOPIC", "bosun.jobs"),
		KafkaDLQTopic:  pkgconfig.GetEnv("KAFKA_DLQ_TOPIC", "bosun.jobs.dlq"),
		KafkaGroupID:   pkgconfig.GetEnv("KAFKA_GROUP_ID", "bosun-worker"),
		KafkaClientID:  pkgconfig.GetEnv("KAFKA_CLIENT_ID", "bosun"),

		LLM:       llm.LoadConfig(),
		Embedding: llm.LoadEmbeddingConfig(),
		AllowMock: pkgconfig.GetEnvBool("LLM_ALLOW_MOCK", false),

		FieldEncryptionKey: pkgconfig.GetEnv("FIELD_ENCRYPTION_KEY", ""),
		JWTSecret:          pkgconfig.GetEnv("JWT_SECRET", ""),
		ServiceToken:       pkgconfig.GetEnv("SERVICE_TOKEN", ""),

		PlatformAPIURL:   pkgconfig.GetEnv("PLATFORM_API_URL", ""),
		PlatformAPIToken: pkgconfig.GetEnv("PLATFORM_API_TOKEN", ""),
		PlatformTimeout:  pkgconfig.GetEnvDuration("PLATFORM_API_TIMEOUT", 10*time.Second),

		OutboundRatePerMinute: pkgconfig.GetEnvInt("OUTBOUND_RATE_PER_MINUTE", 30),
		Port:                  pkgconfig.GetEnv("PORT", "8080"),

		LinkBatchSize:      pkgconfig.GetEnvInt("LINK_BATCH_SIZE", ingest.DefaultLinkBatchSize),
		LinkCandidateLimit: pkgconfig.GetEnvInt("LINK_CANDIDATE_LIMIT", ingest.DefaultLinkCandidateLimit),

		JobTimeout: pkgconfig.GetEnvDuration("JOB_TIMEOUT", 2*time.Minute),
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, describe(err)
	}
	return cfg, nil
}

// GatewayEnv is the env-level fallback for the gateway resolver chain.
func (c Config) GatewayEnv() gateway.EnvDefaults {
	return gateway.EnvDefaults{Chat: c.LLM, Embedding: c.Embedding, AllowMock: c.AllowMock}
}

// Require reports every named setting that is empty. Commands call it with
// the settings they actually use.
func (c Config) Require(names ...string) error {
	values := map[string]string{
		"DATABASE_URL":       c.DatabaseURL,
		"REDIS_URL":          c.RedisURL,
		"JWT_SECRET":         c.JWTSecret,
		"PLATFORM_API_URL":   c.PlatformAPIURL,
		"PLATFORM_API_TOKEN": c.PlatformAPIToken,
	}
	var missing []string
	for _, name := range names {
		v, known := values[name]
		if !known {
			return fmt.Errorf("unknown setting %s", name)
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

var envNames = map[string]string{
	"KafkaBrokers":          "KAFKA_BROKERS",
	"KafkaJobsTopic":        "KAFKA_JOBS_TOPIC",
	"KafkaDLQTopic":         "KAFKA_DLQ_TOPIC",
	"KafkaGroupID":          "KAFKA_GROUP_ID",
	"PlatformAPIURL":        "PLATFORM_API_URL",
	"OutboundRatePerMinute": "OUTBOUND_RATE_PER_MINUTE",
	"Port":                  "PORT",
	"LinkBatchSize":         "LINK_BATCH_SIZE",
	"LinkCandidateLimit":    "LINK_CANDIDATE_LIMIT",
	"JobTimeout":            "JOB_TIMEOUT",
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.StructField()
		if i := strings.IndexByte(name, '['); i > 0 {
			name = name[:i]
		}
		if env, ok := envNames[name]; ok {
			name = env
		}
		problem := name + ": " + fe.Tag()
		if fe.Param() != "" {
			problem += "=" + fe.Param()
		}
		problems = append(problems, problem)
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}
