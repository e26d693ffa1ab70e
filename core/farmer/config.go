package farmer

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ID     string `envconfig:"FARMER_ID"`
	Server struct {
		Host string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
		Port int    `envconfig:"SERVER_PORT" default:"0"`
	}
	Bridge struct {
		Addr              string        `envconfig:"BRIDGE_ADDR" required:"true"`
		HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"10s"`
	}
	Shards struct {
		Path string `envconfig:"SHARD_PATH" default:"./data/farmer"`
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
