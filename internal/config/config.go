package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/TechSnatchers/classpulse2-sub000/internal/catchup"
)

// Config is the system-wide settings tree. Sections map one-to-one onto the
// components the application wires at startup.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Catchup   *CatchupConfig   `json:"catchup"`
	Scheduler *SchedulerConfig `json:"scheduler"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// CatchupConfig selects the reconnect cache backing store. The memory driver
// needs nothing; the redis driver lets multiple instances share cache state.
type CatchupConfig struct {
	Store     string        `json:"store"`
	MaxAge    time.Duration `json:"max_age"`
	RedisAddr string        `json:"redis_addr"`
}

// SchedulerConfig holds automation defaults applied when a start request
// omits them.
type SchedulerConfig struct {
	FirstDelay time.Duration `json:"first_delay"`
	Interval   time.Duration `json:"interval"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./classpulse.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Catchup: &CatchupConfig{
			Store:     string(catchup.StoreTypeMemory),
			MaxAge:    catchup.DefaultMaxAge,
			RedisAddr: "localhost:6379",
		},
		Scheduler: &SchedulerConfig{
			FirstDelay: 5 * time.Second,
			Interval:   60 * time.Second,
		},
	}
}

func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Catchup == nil {
		return fmt.Errorf("catchup configuration is required")
	}
	switch catchup.StoreType(c.Catchup.Store) {
	case catchup.StoreTypeMemory:
	case catchup.StoreTypeRedis:
		if c.Catchup.RedisAddr == "" {
			return fmt.Errorf("catchup redis address cannot be empty with the redis store")
		}
	default:
		return fmt.Errorf("catchup store must be %q or %q", catchup.StoreTypeMemory, catchup.StoreTypeRedis)
	}
	if c.Catchup.MaxAge <= 0 {
		return fmt.Errorf("catchup max age must be positive")
	}

	if c.Scheduler == nil {
		return fmt.Errorf("scheduler configuration is required")
	}
	if c.Scheduler.FirstDelay < 0 {
		return fmt.Errorf("scheduler first delay cannot be negative")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}

	return nil
}

// LoadFromEnv reads CLASSPULSE_* overrides on top of the defaults.
// Unparseable values fall back silently; validation catches anything fatal.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("CLASSPULSE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("CLASSPULSE_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if readTimeout := os.Getenv("CLASSPULSE_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if timeout, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = timeout
		}
	}
	if writeTimeout := os.Getenv("CLASSPULSE_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if timeout, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = timeout
		}
	}

	if dbPath := os.Getenv("CLASSPULSE_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("CLASSPULSE_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if pingInterval := os.Getenv("CLASSPULSE_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if interval, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = interval
		}
	}
	if wsReadTimeout := os.Getenv("CLASSPULSE_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if timeout, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = timeout
		}
	}
	if wsWriteTimeout := os.Getenv("CLASSPULSE_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if timeout, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = timeout
		}
	}
	if bufferSize := os.Getenv("CLASSPULSE_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if store := os.Getenv("CLASSPULSE_CATCHUP_STORE"); store != "" {
		config.Catchup.Store = store
	}
	if maxAge := os.Getenv("CLASSPULSE_CATCHUP_MAX_AGE"); maxAge != "" {
		if age, err := time.ParseDuration(maxAge); err == nil {
			config.Catchup.MaxAge = age
		}
	}
	if addr := os.Getenv("CLASSPULSE_CATCHUP_REDIS_ADDR"); addr != "" {
		config.Catchup.RedisAddr = addr
	}

	if firstDelay := os.Getenv("CLASSPULSE_SCHEDULER_FIRST_DELAY"); firstDelay != "" {
		if d, err := time.ParseDuration(firstDelay); err == nil {
			config.Scheduler.FirstDelay = d
		}
	}
	if interval := os.Getenv("CLASSPULSE_SCHEDULER_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Scheduler.Interval = d
		}
	}

	return config
}

// ConfigFile mirrors Config with string durations for JSON parsing.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Catchup   *CatchupConfigFile   `json:"catchup"`
	Scheduler *SchedulerConfigFile `json:"scheduler"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type CatchupConfigFile struct {
	Store     string `json:"store"`
	MaxAge    string `json:"max_age"`
	RedisAddr string `json:"redis_addr"`
}

type SchedulerConfigFile struct {
	FirstDelay string `json:"first_delay"`
	Interval   string `json:"interval"`
}

// LoadFromFile parses a JSON config file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		setDuration(&config.Database.Timeout, configFile.Database.Timeout)
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		setDuration(&config.HTTP.ReadTimeout, configFile.HTTP.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, configFile.HTTP.WriteTimeout)
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		setDuration(&config.WebSocket.PingInterval, configFile.WebSocket.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, configFile.WebSocket.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, configFile.WebSocket.WriteTimeout)
	}

	if configFile.Catchup != nil {
		if configFile.Catchup.Store != "" {
			config.Catchup.Store = configFile.Catchup.Store
		}
		if configFile.Catchup.RedisAddr != "" {
			config.Catchup.RedisAddr = configFile.Catchup.RedisAddr
		}
		setDuration(&config.Catchup.MaxAge, configFile.Catchup.MaxAge)
	}

	if configFile.Scheduler != nil {
		setDuration(&config.Scheduler.FirstDelay, configFile.Scheduler.FirstDelay)
		setDuration(&config.Scheduler.Interval, configFile.Scheduler.Interval)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. A missing or broken file is ignored so environment-driven
// deployments keep working.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
