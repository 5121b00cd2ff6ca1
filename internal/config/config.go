package config

import (
	"fmt"
	"time"
)

// This file defines the configuration structures used by viper_config.go
// The actual loading is handled by viper in viper_config.go

// ServerConfig represents the server configuration
type ServerConfig struct {
	Server ServerSettings `yaml:"server"`
}

// ServerSettings contains server-wide settings
type ServerSettings struct {
	// Network
	ListenAddress string `yaml:"listenAddress" envconfig:"LISTEN_ADDRESS" default:":8080"`
	StoreEndpoint string `yaml:"storeEndpoint" envconfig:"STORE_ENDPOINT" default:"localhost:6379"`
	StorePassword string `yaml:"storePassword" envconfig:"STORE_PASSWORD"`

	// Game pacing, in whole seconds to match the wire-level contract
	TurnTimeoutSeconds       int `yaml:"turnTimeoutSeconds"`
	ReconnectGraceSeconds    int `yaml:"reconnectGraceSeconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds"`
	SessionTTLSeconds        int `yaml:"sessionTTLSeconds"`
	RoomTTLSeconds           int `yaml:"roomTTLSeconds"`
	RoomQueueCapacity        int `yaml:"roomQueueCapacity"`

	// HTTP server settings. These cover the handshake and the health
	// endpoints; upgraded connections manage their own deadlines.
	ReadTimeout     time.Duration `yaml:"readTimeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idleTimeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"` // Timeout for plain HTTP requests (middleware)

	// Rate limiting (using golang.org/x/time/rate)
	RateLimit      float64 `yaml:"rateLimit" envconfig:"RATE_LIMIT" default:"10"`            // requests per second
	RateLimitBurst int     `yaml:"rateLimitBurst" envconfig:"RATE_LIMIT_BURST" default:"20"` // burst size

	// Request limits
	MaxRequestSize int64 `yaml:"maxRequestSize" envconfig:"MAX_REQUEST_SIZE" default:"65536"` // 64KB

	// Logging
	LogLevel  string `yaml:"logLevel" envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"logFormat" envconfig:"LOG_FORMAT" default:"text"`
}

// The seconds-valued settings travel as integers; these helpers are what the
// rest of the server consumes.

func (s ServerSettings) TurnTimeout() time.Duration {
	return time.Duration(s.TurnTimeoutSeconds) * time.Second
}

func (s ServerSettings) ReconnectGrace() time.Duration {
	return time.Duration(s.ReconnectGraceSeconds) * time.Second
}

func (s ServerSettings) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}

func (s ServerSettings) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLSeconds) * time.Second
}

func (s ServerSettings) RoomTTL() time.Duration {
	return time.Duration(s.RoomTTLSeconds) * time.Second
}

// DefaultConfig returns a default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			ListenAddress: ":8080",
			StoreEndpoint: "localhost:6379",

			// Game pacing defaults
			TurnTimeoutSeconds:       60,
			ReconnectGraceSeconds:    300,
			HeartbeatIntervalSeconds: 30,
			SessionTTLSeconds:        3600,
			RoomTTLSeconds:           3600,
			RoomQueueCapacity:        256,

			// Server defaults
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,

			// Rate limiting defaults
			RateLimit:      10, // 10 requests per second
			RateLimitBurst: 20,

			// Request limits
			MaxRequestSize: 65536, // 64KB

			// Logging defaults
			LogLevel:  "info",
			LogFormat: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *ServerConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("listenAddress must be set")
	}
	if c.Server.StoreEndpoint == "" {
		return fmt.Errorf("storeEndpoint must be set")
	}

	if c.Server.TurnTimeoutSeconds < 1 {
		return fmt.Errorf("turnTimeoutSeconds must be at least 1")
	}
	if c.Server.ReconnectGraceSeconds < 1 {
		return fmt.Errorf("reconnectGraceSeconds must be at least 1")
	}
	if c.Server.HeartbeatIntervalSeconds < 1 {
		return fmt.Errorf("heartbeatIntervalSeconds must be at least 1")
	}
	if c.Server.SessionTTLSeconds <= c.Server.HeartbeatIntervalSeconds {
		return fmt.Errorf("sessionTTLSeconds must be greater than heartbeatIntervalSeconds")
	}
	if c.Server.RoomTTLSeconds < 1 {
		return fmt.Errorf("roomTTLSeconds must be at least 1")
	}
	if c.Server.RoomQueueCapacity < 1 {
		return fmt.Errorf("roomQueueCapacity must be at least 1")
	}

	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("rateLimit must be positive")
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("rateLimitBurst must be at least 1")
	}
	if c.Server.MaxRequestSize < 1024 {
		return fmt.Errorf("maxRequestSize must be at least 1024 bytes")
	}

	switch c.Server.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logLevel must be one of debug, info, warn, error")
	}
	switch c.Server.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("logFormat must be text or json")
	}

	return nil
}
