package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationErrors collects all validation errors so a misconfigured
// deployment reports every problem at once.
type ValidationErrors struct {
	Fields []string
}

func (e *ValidationErrors) add(field, problem string) {
	e.Fields = append(e.Fields, fmt.Sprintf("%s: %s", field, problem))
}

// HasErrors returns true if any validation errors exist.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Fields) > 0
}

// Error formats all validation errors into a clear message.
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, f := range e.Fields {
		sb.WriteString(fmt.Sprintf("  - %s\n", f))
	}
	return sb.String()
}

func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	validateURL(errs, "distribution.push_url", c.Distribution.PushURL, "ws", "wss")
	validateURL(errs, "distribution.pull_url", c.Distribution.PullURL, "http", "https")

	if c.Distribution.PollInterval <= 0 {
		errs.add("distribution.poll_interval", "must be positive")
	}
	if c.Distribution.PullTimeout <= 0 {
		errs.add("distribution.pull_timeout", "must be positive")
	}
	if c.Distribution.ReconnectBaseDelay <= 0 {
		errs.add("distribution.reconnect_base_delay", "must be positive")
	}
	if c.Distribution.ReconnectMaxAttempts < 1 {
		errs.add("distribution.reconnect_max_attempts", "must be >= 1")
	}
	if c.Server.Port == "" {
		errs.add("server.port", "is required")
	}
	if c.Server.RefreshPerSecond <= 0 {
		errs.add("server.refresh_per_second", "must be positive")
	}
	if c.Notify.Enabled && c.Notify.Topic == "" {
		errs.add("notify.topic", "is required when notify is enabled")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(errs *ValidationErrors, field, raw string, schemes ...string) {
	if raw == "" {
		errs.add(field, "is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		errs.add(field, fmt.Sprintf("invalid URL: %v", err))
		return
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return
		}
	}
	errs.add(field, fmt.Sprintf("scheme must be one of %s", strings.Join(schemes, ", ")))
}
