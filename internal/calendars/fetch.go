package calendars

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"staybook/internal/config"
)

// Fetcher pulls remote iCal documents. HTTPS only, bounded size, bounded
// time: a feed URL must not be usable to probe internal services or stall
// a sync sweep.
type Fetcher struct {
	client *http.Client
	cfg    config.CalendarConfig
}

func NewFetcher(cfg config.CalendarConfig) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: cfg.FetchTimeout},
		cfg:    cfg,
	}
}

func (f *Fetcher) Fetch(feedURL string) (string, error) {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return "", fmt.Errorf("invalid calendar URL: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, "https") {
		return "", fmt.Errorf("calendar URL must use https")
	}

	resp, err := f.client.Get(feedURL)
	if err != nil {
		return "", fmt.Errorf("calendar fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("calendar fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxFeedBytes+1))
	if err != nil {
		return "", fmt.Errorf("calendar fetch failed: %w", err)
	}
	if int64(len(body)) > f.cfg.MaxFeedBytes {
		return "", fmt.Errorf("calendar feed exceeds %d bytes", f.cfg.MaxFeedBytes)
	}

	return string(body), nil
}
