package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Engine configuration
	Engine EngineConfig

	// Daemon configuration
	Daemon DaemonConfig

	// Web server configuration
	Web WebConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string // Path to SQLite database file
}

// EngineConfig holds monitoring behavior configuration
type EngineConfig struct {
	TickInterval   time.Duration // Idle sampling cadence
	FlushGrace     time.Duration // Shutdown flush window
	PromptTimeout  time.Duration // Idle disposition prompt timeout
	WriteQueueSize int           // Async writer queue capacity
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file for daemon management
	LogFile string // Path to daemon log file
}

// WebConfig holds web server configuration
type WebConfig struct {
	Host string // Host to bind web server to
	Port int    // Port for web server
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/hourglass/hourglass.db
		},
		Engine: EngineConfig{
			TickInterval:   1 * time.Second,
			FlushGrace:     3 * time.Second,
			PromptTimeout:  2 * time.Minute,
			WriteQueueSize: 64,
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/hourglass-%d.pid", os.Getuid()),
			LogFile: "/tmp/hourglass.log",
		},
		Web: WebConfig{
			Host: "localhost",
			Port: 10000 + os.Getuid(),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.Engine.TickInterval)
	}

	if c.Engine.TickInterval > time.Minute {
		return fmt.Errorf("tick interval (%v) cannot exceed one minute", c.Engine.TickInterval)
	}

	if c.Engine.FlushGrace <= 0 {
		return fmt.Errorf("flush grace must be positive, got %v", c.Engine.FlushGrace)
	}

	if c.Engine.WriteQueueSize < 1 {
		return fmt.Errorf("write queue size must be at least 1, got %d", c.Engine.WriteQueueSize)
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// WebAddress returns the host:port the API server binds to
func (c *Config) WebAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Database:
    Path: %s
  Engine:
    Tick Interval: %v
    Flush Grace: %v
    Prompt Timeout: %v
    Write Queue Size: %d
  Daemon:
    PID File: %s
    Log File: %s
  Web:
    Host: %s
    Port: %d`,
		c.Database.Path,
		c.Engine.TickInterval,
		c.Engine.FlushGrace,
		c.Engine.PromptTimeout,
		c.Engine.WriteQueueSize,
		c.Daemon.PIDFile,
		c.Daemon.LogFile,
		c.Web.Host,
		c.Web.Port,
	)
}
