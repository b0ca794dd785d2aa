package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatsync/internal/constants"
	"chatsync/internal/models"
)

var (
	ErrMissingLogSourceURL = models.ConfigError{Message: "missing log source base URL"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Reject traversal in the config path before reading it
	if strings.Contains(filepath.Clean(path), "..") {
		return nil, fmt.Errorf("invalid config path: %s", path)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.LogSource.BaseURL == "" {
		return ErrMissingLogSourceURL
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Upload.BaseURL == "" {
		// Text-only deployments work without an upload endpoint; media
		// sends will fail validation at the applier
		fmt.Fprintf(os.Stderr, "WARNING: upload base URL not set, media sends are disabled.\n")
	}

	if c.LogSource.TimeoutSec <= 0 {
		c.LogSource.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Upload.TimeoutSec <= 0 {
		c.Upload.TimeoutSec = constants.DefaultUploadTimeoutSec
	}

	if c.Window.Cap <= 0 {
		c.Window.Cap = constants.DefaultWindowCap
	}
	if c.Window.InitialTailSize <= 0 {
		c.Window.InitialTailSize = constants.DefaultInitialTailSize
	}
	if c.Window.PageSize <= 0 {
		c.Window.PageSize = constants.DefaultPageSize
	}
	if c.Window.FlushIntervalMs <= 0 {
		c.Window.FlushIntervalMs = constants.DefaultFlushIntervalMs
	}
	if c.Window.ScrollThrottleMs <= 0 {
		c.Window.ScrollThrottleMs = constants.DefaultScrollThrottleMs
	}

	if c.Window.InitialTailSize > c.Window.Cap {
		return models.ConfigError{Message: fmt.Sprintf("initial tail size (%d) cannot exceed window cap (%d)", c.Window.InitialTailSize, c.Window.Cap)}
	}
	if c.Window.PageSize > c.Window.Cap {
		return models.ConfigError{Message: fmt.Sprintf("page size (%d) cannot exceed window cap (%d)", c.Window.PageSize, c.Window.Cap)}
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxSec * 1000
	}
	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		return models.ConfigError{Message: "max backoff cannot be lower than initial backoff"}
	}

	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			c.Tracing.ServiceName = "chatsync"
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			c.Tracing.SampleRate = 1.0
		}
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("CHATSYNC_LOG_SOURCE_URL"); url != "" {
		c.LogSource.BaseURL = url
	}

	// SECURITY: API keys should be set via environment variables
	if key := os.Getenv("CHATSYNC_API_KEY"); key != "" {
		c.LogSource.APIKey = key
	}

	if url := os.Getenv("CHATSYNC_UPLOAD_URL"); url != "" {
		c.Upload.BaseURL = url
	}
	if path := os.Getenv("CHATSYNC_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv("CHATSYNC_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("CHATSYNC_ENV") == "production"

	if isProduction {
		if c.LogSource.APIKey == "" {
			return models.ConfigError{Message: "log source API key is required in production (set CHATSYNC_API_KEY environment variable)"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.LogSource.APIKey == "" {
			fmt.Fprintf(os.Stderr, "WARNING: log source API key not set. Set CHATSYNC_API_KEY environment variable for security.\n")
		}
	}

	return nil
}
