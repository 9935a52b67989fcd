package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tasklane/chatkit/internal/composer"
	"github.com/tasklane/chatkit/internal/transport"
	pkgconfig "github.com/tasklane/chatkit/pkg/config"
	"github.com/tasklane/chatkit/pkg/log"
)

// Config is the chat client configuration.
type Config struct {
	Server     ServerConfig
	WebSocket  transport.Config
	Typing     TypingConfig
	Attachment composer.Config
	Auth       AuthConfig
	Log        log.Config
}

type ServerConfig struct {
	WSURL      string `mapstructure:"ws_url"`
	HistoryURL string `mapstructure:"history_url"`
}

type TypingConfig struct {
	Expiry   time.Duration `mapstructure:"expiry"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type AuthConfig struct {
	Token    string `mapstructure:"token"`
	UserID   string `mapstructure:"user_id"`
	Username string `mapstructure:"username"`
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "chatctl")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.ws_url", "ws://localhost:8090/chat/ws")
	v.SetDefault("server.history_url", "http://localhost:8090")
	v.SetDefault("websocket.handshake_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("typing.expiry", "3s")
	v.SetDefault("typing.debounce", "1200ms")
	v.SetDefault("attachment.max_dimension", 1600)
	v.SetDefault("attachment.jpeg_quality", 85)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.user_id", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	// Override from environment
	v.BindEnv("server.ws_url", "CHAT_WS_URL")
	v.BindEnv("server.history_url", "CHAT_HISTORY_URL")
	v.BindEnv("auth.token", "CHAT_TOKEN")
	v.BindEnv("auth.user_id", "CHAT_USER_ID")
	v.BindEnv("auth.username", "CHAT_USERNAME")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.HandshakeTimeout = parseDuration(v, "websocket.handshake_timeout", 10*time.Second)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Typing.Expiry = parseDuration(v, "typing.expiry", 3*time.Second)
	cfg.Typing.Debounce = parseDuration(v, "typing.debounce", 1200*time.Millisecond)

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
