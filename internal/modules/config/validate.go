package config

import (
	"fmt"
)

// ConfigError: отсутствующая или невалидная настройка.
type ConfigError struct {
	Key    string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate ...
func (c *Config) Validate() error {
	required := []struct {
		key, val string
	}{
		{"USER", c.Connection.User},
		{"APIPASSWORD", c.Connection.APIPassword},
		{"APIKEY", c.Connection.APIKey},
	}
	for _, r := range required {
		if r.val == "" {
			return &ConfigError{Key: r.key, Reason: "is required"}
		}
	}

	switch c.App.Environment {
	case EnvironmentTest, EnvironmentLive:
	default:
		return &ConfigError{
			Key:    "ENVIRONMENT",
			Reason: fmt.Sprintf("must be one of [%s %s], got %q", EnvironmentTest, EnvironmentLive, c.App.Environment),
		}
	}

	if c.App.PingInterval <= 0 {
		return &ConfigError{Key: "app.ping_interval", Reason: "must be > 0"}
	}
	if c.App.MaxPages < 1 {
		return &ConfigError{Key: "app.max_pages", Reason: "must be >= 1"}
	}
	if c.App.PaginationTimeout < 0 {
		return &ConfigError{Key: "app.pagination_timeout", Reason: "must be >= 0"}
	}
	if c.Stream.PingInterval <= 0 {
		return &ConfigError{Key: "stream.ping_interval", Reason: "must be > 0"}
	}
	if c.Tracing.Enabled && (c.Tracing.Port < 1 || c.Tracing.Port > 65535) {
		return &ConfigError{Key: "tracing.port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.Tracing.Port)}
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == 0) {
		return &ConfigError{Key: "telegram", Reason: "token and chat_id must be set together"}
	}
	return nil
}
