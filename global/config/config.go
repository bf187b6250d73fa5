package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig is the whole process configuration, populated from the
// environment (prefix TEAMCHAT_). A local .env file is honored when present.
type AppConfig struct {
	NodeID   string `envconfig:"NODE_ID" default:"gateway_01"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	JWTSecret string `envconfig:"JWT_SECRET" default:"dev-only-secret-change-me"`

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
		PoolSize int    `envconfig:"REDIS_POOL_SIZE" default:"20"`
	}

	Mongo struct {
		URI         string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
		Database    string `envconfig:"MONGO_DATABASE" default:"teamchat"`
		Username    string `envconfig:"MONGO_USERNAME"`
		Password    string `envconfig:"MONGO_PASSWORD"`
		MaxPoolSize uint64 `envconfig:"MONGO_MAX_POOL" default:"20"`
	}

	Kafka struct {
		Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
		Brokers []string `envconfig:"KAFKA_BROKERS" default:"127.0.0.1:9092"`
		GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"teamchat-dispatch"`
		Topic   string   `envconfig:"KAFKA_TOPIC" default:"teamchat.events"`
	}

	Presence struct {
		TTL        time.Duration `envconfig:"PRESENCE_TTL" default:"2m"`
		StaleAfter time.Duration `envconfig:"PRESENCE_STALE_AFTER" default:"5m"`
		SweepEvery time.Duration `envconfig:"PRESENCE_SWEEP_EVERY" default:"1m"`
	}

	Gateway struct {
		SendQueueSize int `envconfig:"GW_SEND_QUEUE" default:"256"`
		FanoutWorkers int `envconfig:"GW_FANOUT_WORKERS" default:"8"`
		FanoutQueue   int `envconfig:"GW_FANOUT_QUEUE" default:"4096"`
	}
}

func Load() (*AppConfig, error) {
	_ = godotenv.Load() // optional in dev, absent in prod

	var cfg AppConfig
	if err := envconfig.Process("teamchat", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
