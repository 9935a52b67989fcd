package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tasklane/chatkit/internal/devserver/hub"
	"github.com/tasklane/chatkit/internal/devserver/store"
	pkgconfig "github.com/tasklane/chatkit/pkg/config"
	"github.com/tasklane/chatkit/pkg/log"
)

type Config struct {
	Server    ServerConfig
	WebSocket hub.Config
	JWT       JWTConfig
	History   HistoryConfig
	Redis     store.RedisConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type JWTConfig struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Duration time.Duration `mapstructure:"duration"`
}

type HistoryConfig struct {
	// Backend selects "memory" or "redis".
	Backend    string `mapstructure:"backend"`
	MaxPerRoom int    `mapstructure:"max_per_room"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "devserver")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.issuer", "chatkit-dev")
	v.SetDefault("jwt.duration", "24h")
	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.max_per_room", 500)
	v.SetDefault("history.key_prefix", "chat:history")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("history.backend", "HISTORY_BACKEND")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.JWT.Duration = parseDuration(v, "jwt.duration", 24*time.Hour)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
