package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// ErrStatusNotOK indicates the pull endpoint answered with a non-200 status.
var ErrStatusNotOK = errors.New("pull endpoint returned non-OK status")

// Fetcher issues bounded full-state fetches against the pull endpoint.
// Full snapshots can run large, so the request advertises zstd and the
// response body is transparently decoded.
type Fetcher struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewFetcher(url string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &Fetcher{
		httpClient: &http.Client{Transport: transport},
		url:        url,
		timeout:    timeout,
		logger:     logger,
	}
}

// FetchAll retrieves the complete current state, keyed by domain. The
// request is bounded by the configured timeout regardless of ctx.
func (f *Fetcher) FetchAll(ctx context.Context) (snapshot.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrStatusNotOK, resp.StatusCode)
	}

	body, err := f.decodeBody(resp)
	if err != nil {
		return nil, err
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	f.logger.Debug("full-state fetch complete",
		zap.Int("domains", len(snap)),
		zap.Int("bytes", len(body)),
	)
	return snap, nil
}

func (f *Fetcher) decodeBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") != "zstd" {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}
		return body, nil
	}

	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	body, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing response: %w", err)
	}
	return body, nil
}
