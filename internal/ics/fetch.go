package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "clubcal/internal/log"
)

// maxFeedBytes caps how much of a feed is read into memory.
const maxFeedBytes = 10 << 20

// ErrNotICS is returned when a feed URL answers with something other than
// an iCalendar document, typically an HTML login page.
var ErrNotICS = errors.New("ics: response is not an iCalendar document")

// Source represents a single ICS subscription source.
type Source struct {
	// ID is an internal identifier (e.g., config ICS ID).
	ID string
	// Name is the label shown next to the feed's events.
	Name string
	// URL is the ICS endpoint.
	URL string
}

// Fetcher downloads ICS feeds. Every call goes to the network; there is no
// cache behind it.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a bounded request timeout. A nil client
// gets a default one.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch returns the raw feed body.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("ics: source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ics: fetch %s: %w", src.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ics: fetch %s: %s", src.ID, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("ics: read %s: %w", src.ID, err)
	}
	if err := validateICS(body); err != nil {
		return nil, fmt.Errorf("ics: %s: %w", src.ID, err)
	}

	appLog.Debug("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
	return body, nil
}

func validateICS(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	// Strip a UTF-8 BOM some exporters emit.
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))
	upper := bytes.ToUpper(trimmed[:min(len(trimmed), 64)])
	if bytes.HasPrefix(upper, []byte("<!DOCTYPE")) || bytes.HasPrefix(upper, []byte("<HTML")) {
		return fmt.Errorf("%w: received HTML, the feed may require authentication", ErrNotICS)
	}
	if !bytes.HasPrefix(upper, []byte("BEGIN:VCALENDAR")) {
		return ErrNotICS
	}
	return nil
}

// redactURL hides the path and query of a feed URL for logging, since
// private ICS links embed their secret there.
//
//	https://example.com/path/to/private.ics?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "ics://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + "/...(redacted)"
}
