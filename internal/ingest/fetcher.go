package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"visual-search-platform/internal/config"
)

const fetchAttempts = 3

// Fetcher downloads catalog images to a local scratch file. Downloads are
// rate-limited across all workers and retried a fixed number of times; the
// scratch file is removed after the bytes are read unless KeepLocalCopy
// asked for it to stay.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	dir     string
	keep    bool
}

func NewFetcher(cfg *config.Config, keepLocalCopy bool) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.DownloadTimeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.DownloadRPS), int(cfg.DownloadRPS)+1),
		dir:     cfg.DownloadDir,
		keep:    keepLocalCopy,
	}
}

// Fetch downloads the image and returns its bytes.
func (f *Fetcher) Fetch(ctx context.Context, url, photoID string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		data, err := f.fetchOnce(ctx, url, photoID)
		if err == nil {
			return data, nil
		}
		lastErr = err
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("download failed after %d attempts: %w", fetchAttempts, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url, photoID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	path := filepath.Join(f.dir, photoID+".jpg")
	out, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write scratch file: %w", err)
	}
	out.Close()

	data, err := os.ReadFile(path)
	if !f.keep {
		os.Remove(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch file: %w", err)
	}
	return data, nil
}
