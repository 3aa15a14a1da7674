package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"KAFKA_BROKERS", "KAFKA_JOBS_TOPIC", "KAFKA_DLQ_TOPIC", "PORT", "LINK_BATCH_SIZE", "LINK_CANDIDATE_LIMIT", "OUTBOUND_RATE_PER_MINUTE", "JOB_TIMEOUT", "PLATFORM_API_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.KafkaJobsTopic != "bosun.jobs" || cfg.KafkaDLQTopic != "bosun.jobs.dlq" {
		t.Fatalf("unexpected topics %q %q", cfg.KafkaJobsTopic, cfg.KafkaDLQTopic)
	}
	if cfg.Port != "8080" || cfg.LinkBatchSize != 20 || cfg.LinkCandidateLimit != 30 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.OutboundRatePerMinute != 30 || cfg.JobTimeout != 2*time.Minute {
		t.Fatalf("unexpected outbound/job defaults %d %s", cfg.OutboundRatePerMinute, cfg.JobTimeout)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://bosun@localhost/bosun?sslmode=disable")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LINK_BATCH_SIZE", "5")
	t.Setenv("JOB_TIMEOUT", "45s")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("LLM_ALLOW_MOCK", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.LinkBatchSize != 5 || cfg.JobTimeout != 45*time.Second {
		t.Fatalf("unexpected overrides %+v", cfg)
	}

	env := cfg.GatewayEnv()
	if env.Chat.Provider != "anthropic" || env.Embedding.Provider != "openai" || env.Embedding.APIKey != "sk-test" || !env.AllowMock {
		t.Fatalf("unexpected gateway env %+v", env)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "not-a-broker")
	t.Setenv("PORT", "http")
	t.Setenv("LINK_BATCH_SIZE", "0")
	t.Setenv("KAFKA_DLQ_TOPIC", "jobs")
	t.Setenv("KAFKA_JOBS_TOPIC", "jobs")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"KAFKA_BROKERS: hostname_port", "PORT: numeric", "LINK_BATCH_SIZE: gte=1", "KAFKA_DLQ_TOPIC: nefield=KafkaJobsTopic"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestRequire(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://x", JWTSecret: " "}
	if err := cfg.Require("DATABASE_URL"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := cfg.Require("DATABASE_URL", "JWT_SECRET", "REDIS_URL")
	if err == nil || err.Error() != "missing required settings: JWT_SECRET, REDIS_URL" {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Require("NOPE"); err == nil {
		t.Fatal("expected unknown setting error")
	}
}
