package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Chat      ChatConfig
}

type ServerConfig struct {
	Address   string
	StaticDir string          `mapstructure:"staticDir"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type RateLimitConfig struct {
	MaxConnsPerIP int `mapstructure:"maxConnsPerIP"`
}

type TransportConfig struct {
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	MaxMessageSize int64         `mapstructure:"maxMessageSize"`
}

type ChatConfig struct {
	DefaultGroup string `mapstructure:"defaultGroup"`
}
