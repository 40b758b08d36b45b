package ics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/calnotes/internal/model"
)

// Provider serves events of configured ICS feeds. The feed id is the
// calendar tracking id.
type Provider struct {
	fetcher *Fetcher
	feeds   []Feed
	byID    map[string]Feed
	self    model.EmailSet
	log     *slog.Logger
}

// NewProvider creates a Provider over feeds. selfEmails flag the current user
// among attendees.
func NewProvider(fetcher *Fetcher, feeds []Feed, selfEmails []string, logger *slog.Logger) *Provider {
	byID := make(map[string]Feed, len(feeds))
	for _, f := range feeds {
		byID[f.ID] = f
	}
	return &Provider{
		fetcher: fetcher,
		feeds:   feeds,
		byID:    byID,
		self:    model.NewEmailSet(selfEmails...),
		log:     logger,
	}
}

// Feeds returns the configured feeds.
func (p *Provider) Feeds() []Feed {
	return p.feeds
}

// ListEvents fetches, parses and expands one feed.
func (p *Provider) ListEvents(ctx context.Context, calendarTrackingID string, from, to time.Time) ([]model.RawEvent, error) {
	feed, ok := p.byID[calendarTrackingID]
	if !ok {
		return nil, fmt.Errorf("unknown ICS feed %q", calendarTrackingID)
	}

	body, err := p.fetcher.Fetch(ctx, feed)
	if err != nil {
		return nil, err
	}

	events, skipped, err := parseCalendar(body, p.self)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", feed.ID, err)
	}
	if skipped > 0 {
		p.log.Warn("skipped malformed VEVENTs", "feed_id", feed.ID, "count", skipped)
	}

	raws, err := expand(events, feed.ID, feed.Name, from, to)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", feed.ID, err)
	}
	p.log.Debug("expanded feed", "feed_id", feed.ID, "vevents", len(events), "occurrences", len(raws))
	return raws, nil
}
