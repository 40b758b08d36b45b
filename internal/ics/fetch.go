// Package ics provides a calendar provider over subscribed iCalendar feeds.
//
// Feeds are fetched over HTTP with conditional requests (ETag and
// Last-Modified) and the last good body is kept in memory so that a flaky
// feed keeps serving its previous content. VEVENTs are parsed with
// golang-ical and recurring events are expanded into occurrences with
// rrule-go.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	// bodyTTL bounds how long a cached feed body may be served after the
	// feed stops answering.
	bodyTTL = 24 * time.Hour
	// maxBodySize caps a single feed download.
	maxBodySize = 32 << 20
)

// Feed is one subscribed calendar.
type Feed struct {
	// ID is the feed's tracking id, stable across renames.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// cachedBody is the last good response of a feed.
type cachedBody struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads feeds with HTTP caching.
type Fetcher struct {
	client   *http.Client
	cache    *cache.Cache
	log      *slog.Logger
	attempts int
	maxBody  int64
}

// NewFetcher creates a Fetcher. A nil client selects one with a 15s timeout.
func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Fetcher{
		client:   client,
		cache:    cache.New(bodyTTL, bodyTTL*2),
		log:      logger,
		attempts: defaultMaxAttempts,
		maxBody:  maxBodySize,
	}
}

// Fetch returns the feed body. Network errors and 5xx replies are retried
// with backoff. A 304 reply, exhausted retries or another non-2xx status fall
// back to the cached body when there is one.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) ([]byte, error) {
	if feed.URL == "" {
		return nil, errors.New("feed URL is empty")
	}

	var prev *cachedBody
	if v, ok := f.cache.Get(feed.URL); ok {
		prev = v.(*cachedBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")
	if prev != nil {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}

	var resp *http.Response
	err = retry(ctx, f.attempts, func() error {
		r, err := f.client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return permanent(err)
			}
			return err
		}
		if r.StatusCode >= 500 {
			_ = r.Body.Close()
			return fmt.Errorf("unexpected HTTP %d", r.StatusCode)
		}
		resp = r
		return nil
	})
	if err != nil {
		if prev != nil {
			f.log.Warn("feed fetch failed, using cached body", "feed_id", feed.ID, "url", redactURL(feed.URL), "error", err)
			return prev.body, nil
		}
		return nil, fmt.Errorf("fetching feed %q: %w", feed.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if prev == nil {
			return nil, fmt.Errorf("feed %q: 304 Not Modified without a cached body", feed.ID)
		}
		f.log.Debug("feed not modified", "feed_id", feed.ID)
		f.cache.Set(feed.URL, prev, cache.DefaultExpiration)
		return prev.body, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := f.readBody(resp.Body)
		if err != nil {
			if prev != nil {
				f.log.Warn("feed body unusable, using cached body", "feed_id", feed.ID, "error", err)
				return prev.body, nil
			}
			return nil, fmt.Errorf("reading feed %q: %w", feed.ID, err)
		}
		f.cache.Set(feed.URL, &cachedBody{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}, cache.DefaultExpiration)
		f.log.Debug("feed fetched", "feed_id", feed.ID, "bytes", len(body))
		return body, nil

	default:
		if prev != nil {
			f.log.Warn("feed returned error status, using cached body", "feed_id", feed.ID, "status", resp.StatusCode)
			return prev.body, nil
		}
		return nil, fmt.Errorf("feed %q: unexpected HTTP %d", feed.ID, resp.StatusCode)
	}
}

// readBody reads the whole body or fails; it never returns a truncated feed.
func (f *Fetcher) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("body exceeds %d bytes", f.maxBody)
	}
	return body, nil
}

// redactURL keeps only the scheme and host of a feed URL for logging; feed
// paths and queries often carry private tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/..."
}
