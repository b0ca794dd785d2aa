package models

// Config holds the application configuration
type Config struct {
	LogSource LogSourceConfig `json:"log_source"`
	Upload    UploadConfig    `json:"upload"`
	Window    WindowConfig    `json:"window"`
	Database  DatabaseConfig  `json:"database"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// LogSourceConfig holds ordered log source backend configurations
type LogSourceConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSec     int    `json:"timeout_sec"`
	FeedPingSec    int    `json:"feed_ping_sec"`
	ReconnectFeeds bool   `json:"reconnect_feeds"`
}

// UploadConfig holds attachment upload configurations
type UploadConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
	MaxSizeMB  int    `json:"max_size_mb"`
}

// WindowConfig holds window store and pipeline tunables
type WindowConfig struct {
	Cap              int `json:"cap"`
	InitialTailSize  int `json:"initial_tail_size"`
	PageSize         int `json:"page_size"`
	FlushIntervalMs  int `json:"flush_interval_ms"`
	ScrollThrottleMs int `json:"scroll_throttle_ms"`
}

// DatabaseConfig holds outbox database configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RetryConfig holds feed reconnect backoff configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

// TracingConfig holds OpenTelemetry tracing configurations
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	UseStdout   bool    `json:"use_stdout"`
	SampleRate  float64 `json:"sample_rate"`
	ServiceName string  `json:"service_name"`
	Insecure    bool    `json:"insecure"`
	Environment string  `json:"environment"`
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
