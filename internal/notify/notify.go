// Package notify sends operational alerts via ntfy when the realtime feed
// degrades, so operators hear about a broken push channel before users do.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/config"
)

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     config.NotifyConfig
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg config.NotifyConfig, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// PushExhausted alerts that reconnect attempts ran out and the dashboard is
// committed to polling until a manual restart.
func (c *Client) PushExhausted(ctx context.Context, attempts int) {
	if !c.config.Enabled {
		return
	}

	title := "Admin dashboard: realtime feed lost"
	message := fmt.Sprintf(
		"Push connection failed %d consecutive times; falling back to polling until manually restarted.",
		attempts,
	)
	tags := c.config.Tags + ",rotating_light"

	if err := c.send(ctx, title, message, tags, "high"); err != nil {
		c.logger.Warn("failed to send exhaustion alert", zap.Error(err))
	}
}

// PushRecovered alerts that the push channel is healthy again.
func (c *Client) PushRecovered(ctx context.Context) {
	if !c.config.Enabled {
		return
	}

	title := "Admin dashboard: realtime feed restored"
	message := "Push connection re-established; polling fallback disabled."
	tags := c.config.Tags + ",white_check_mark"

	if err := c.send(ctx, title, message, tags, c.config.Priority); err != nil {
		c.logger.Warn("failed to send recovery alert", zap.Error(err))
	}
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Debug("notification sent",
		zap.String("topic", c.config.Topic),
		zap.String("title", title),
	)
	return nil
}
