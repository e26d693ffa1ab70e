package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server struct {
		Host string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
		Port int    `envconfig:"SERVER_PORT" default:"1234"`
	}
	Status struct {
		Addr string `envconfig:"STATUS_ADDR" default:":8080"`
	}
	Redis struct {
		Addrs    []string `envconfig:"REDIS_ADDRS" default:"127.0.0.1:6379"`
		Password string   `envconfig:"REDIS_PASSWORD"`
		DB       int      `envconfig:"REDIS_DB" default:"0"`
	}
	Queue struct {
		Namespace     string        `envconfig:"QUEUE_NAMESPACE" default:"audits"`
		Worker        string        `envconfig:"QUEUE_WORKER"`
		PollInterval  time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"1s"`
		VerifyTimeout time.Duration `envconfig:"AUDIT_VERIFY_TIMEOUT" default:"10s"`
	}
	Monitor struct {
		SampleSize  int           `envconfig:"MONITOR_SAMPLE_SIZE" default:"10"`
		Threshold   time.Duration `envconfig:"MONITOR_THRESHOLD" default:"10m"`
		MinInterval time.Duration `envconfig:"MONITOR_MIN_INTERVAL" default:"30s"`
		MaxInterval time.Duration `envconfig:"MONITOR_MAX_INTERVAL" default:"60s"`
		PingTimeout time.Duration `envconfig:"MONITOR_PING_TIMEOUT" default:"5s"`
	}
	Contracts struct {
		ReplicationFactor int `envconfig:"REPLICATION_FACTOR" default:"3"`
	}
	Data struct {
		Path string `envconfig:"DATA_PATH" default:"./data/bridge"`
	}
}

func GetConfig() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
