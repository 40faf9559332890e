package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// DatabaseURL selects the Postgres ledger; empty runs on the in-memory
	// store (local development only).
	DatabaseURL string `env:"DATABASE_URL"`

	// Market feed source: Kafka wins when brokers are set, then Redis.
	KafkaBrokers string `env:"KAFKA_BROKERS"`
	KafkaTopic   string `env:"KAFKA_TOPIC" envDefault:"market-quotes"`
	KafkaGroupID string `env:"KAFKA_GROUP_ID" envDefault:"portfolio-ledger"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	ViewCacheTTL time.Duration `env:"VIEW_CACHE_TTL" envDefault:"2s"`
}

func Load() (Config, error) {
	var cfg Config
	return cfg, env.Parse(&cfg)
}
