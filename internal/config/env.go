package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables
// Environment variables override default values
func LoadFromEnv(cfg *Config) {
	// Database configuration
	if dbPath := os.Getenv("HOURGLASS_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Engine configuration
	if tick := os.Getenv("HOURGLASS_TICK_INTERVAL"); tick != "" {
		if seconds, err := strconv.Atoi(tick); err == nil && seconds > 0 {
			cfg.Engine.TickInterval = time.Duration(seconds) * time.Second
		}
	}

	if grace := os.Getenv("HOURGLASS_FLUSH_GRACE"); grace != "" {
		if seconds, err := strconv.Atoi(grace); err == nil && seconds > 0 {
			cfg.Engine.FlushGrace = time.Duration(seconds) * time.Second
		}
	}

	if timeout := os.Getenv("HOURGLASS_PROMPT_TIMEOUT"); timeout != "" {
		if seconds, err := strconv.Atoi(timeout); err == nil && seconds > 0 {
			cfg.Engine.PromptTimeout = time.Duration(seconds) * time.Second
		}
	}

	if queueSize := os.Getenv("HOURGLASS_WRITE_QUEUE_SIZE"); queueSize != "" {
		if size, err := strconv.Atoi(queueSize); err == nil && size > 0 {
			cfg.Engine.WriteQueueSize = size
		}
	}

	// Daemon configuration
	if pidFile := os.Getenv("HOURGLASS_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}

	if logFile := os.Getenv("HOURGLASS_LOG_FILE"); logFile != "" {
		cfg.Daemon.LogFile = logFile
	}

	// Web configuration
	if webHost := os.Getenv("HOURGLASS_WEB_HOST"); webHost != "" {
		cfg.Web.Host = webHost
	}

	if webPort := os.Getenv("HOURGLASS_WEB_PORT"); webPort != "" {
		if port, err := strconv.Atoi(webPort); err == nil && port > 0 && port <= 65535 {
			cfg.Web.Port = port
		}
	}
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}
