package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration using Viper
// Priority order: Environment variables > Config file > Defaults
func LoadConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set config file details
	v.SetConfigName("server")
	v.SetConfigType("yaml")

	// Add config paths
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hokmd")
	}

	// Enable environment variable binding
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables
	// These allow both HOKMD_SERVER_LISTENADDRESS and LISTEN_ADDRESS to work
	v.BindEnv("server.listenaddress", "LISTEN_ADDRESS")
	v.BindEnv("server.storeendpoint", "STORE_ENDPOINT")
	v.BindEnv("server.storepassword", "STORE_PASSWORD")
	v.BindEnv("server.turntimeoutseconds", "TURN_TIMEOUT_SECONDS")
	v.BindEnv("server.reconnectgraceseconds", "RECONNECT_GRACE_SECONDS")
	v.BindEnv("server.heartbeatintervalseconds", "HEARTBEAT_INTERVAL_SECONDS")
	v.BindEnv("server.sessionttlseconds", "SESSION_TTL_SECONDS")
	v.BindEnv("server.roomttlseconds", "ROOM_TTL_SECONDS")
	v.BindEnv("server.roomqueuecapacity", "ROOM_QUEUE_CAPACITY")
	v.BindEnv("server.loglevel", "LOG_LEVEL")
	v.BindEnv("server.logformat", "LOG_FORMAT")
	v.BindEnv("server.ratelimit", "RATE_LIMIT")
	v.BindEnv("server.ratelimitburst", "RATE_LIMIT_BURST")
	v.BindEnv("server.maxrequestsize", "MAX_REQUEST_SIZE")

	// Network defaults
	v.SetDefault("server.listenaddress", ":8080")
	v.SetDefault("server.storeendpoint", "localhost:6379")

	// Game pacing defaults
	v.SetDefault("server.turntimeoutseconds", 60)
	v.SetDefault("server.reconnectgraceseconds", 300)
	v.SetDefault("server.heartbeatintervalseconds", 30)
	v.SetDefault("server.sessionttlseconds", 3600)
	v.SetDefault("server.roomttlseconds", 3600)
	v.SetDefault("server.roomqueuecapacity", 256)

	// Timeout defaults
	v.SetDefault("server.readtimeout", "15s")
	v.SetDefault("server.writetimeout", "15s")
	v.SetDefault("server.idletimeout", "60s")
	v.SetDefault("server.shutdowntimeout", "30s")

	// Request timeout for middleware (upgraded connections are exempt)
	v.SetDefault("server.requesttimeout", "60s")

	// Rate limiting defaults
	v.SetDefault("server.ratelimit", 10.0)
	v.SetDefault("server.ratelimitburst", 20)

	// Request limits
	v.SetDefault("server.maxrequestsize", 65536) // 64KB

	// Logging defaults
	v.SetDefault("server.loglevel", "info")
	v.SetDefault("server.logformat", "text")

	// Try to read config file (it's optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// For other errors, check if it's just file not found
			if strings.Contains(err.Error(), "no such file or directory") {
				// File doesn't exist, continue with defaults
			} else {
				// Config file was found but another error occurred
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
		// Config file not found; continue with env vars and defaults
	}

	// Create config struct
	cfg := &ServerConfig{}

	// Unmarshal into the struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Additional validation
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
