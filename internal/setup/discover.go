package setup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/njoerd114/calnotes/internal/config"
	"github.com/njoerd114/calnotes/internal/eventkit"
	"github.com/njoerd114/calnotes/internal/model"
)

// DiscoveredCalendar is a calendar offered by a provider, before it is
// registered in the local store.
type DiscoveredCalendar struct {
	TrackingID string
	Name       string
	Provider   model.Provider
}

// String returns a human-readable representation for selection prompts.
func (d DiscoveredCalendar) String() string {
	return d.Name
}

// CalendarLister lists OS calendars. Implemented by [*eventkit.Adapter].
type CalendarLister interface {
	Calendars(ctx context.Context) ([]eventkit.CalendarInfo, error)
}

// CalendarStore is the subset of the store used to register calendars.
type CalendarStore interface {
	UpsertCalendar(ctx context.Context, c *model.Calendar) error
	SetCalendarEnabled(ctx context.Context, id string, enabled bool) error
}

// DiscoverEventKit returns the OS calendars. This triggers the macOS TCC
// permissions prompt on first use.
func DiscoverEventKit(ctx context.Context, lister CalendarLister, logger *slog.Logger) ([]DiscoveredCalendar, error) {
	infos, err := lister.Calendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering calendars: %w", err)
	}
	logger.Debug("discovered OS calendars", "count", len(infos))

	out := make([]DiscoveredCalendar, 0, len(infos))
	for _, c := range infos {
		out = append(out, DiscoveredCalendar{
			TrackingID: c.ID,
			Name:       c.String(),
			Provider:   model.ProviderApple,
		})
	}
	return out, nil
}

// DiscoverFeeds returns the configured ICS feeds as calendars.
func DiscoverFeeds(feeds []config.FeedConfig) []DiscoveredCalendar {
	out := make([]DiscoveredCalendar, 0, len(feeds))
	for _, f := range feeds {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		out = append(out, DiscoveredCalendar{
			TrackingID: f.ID,
			Name:       name,
			Provider:   model.ProviderICS,
		})
	}
	return out
}

// Register upserts discovered calendars for userID. When enable is non-nil it
// decides each calendar's enabled flag; otherwise existing rows keep theirs
// and new rows start disabled.
func Register(ctx context.Context, st CalendarStore, userID string, found []DiscoveredCalendar, enable func(DiscoveredCalendar) bool) ([]*model.Calendar, error) {
	out := make([]*model.Calendar, 0, len(found))
	for _, d := range found {
		c := &model.Calendar{
			ID:         uuid.NewString(),
			UserID:     userID,
			TrackingID: d.TrackingID,
			Name:       d.Name,
			Provider:   d.Provider,
		}
		if err := st.UpsertCalendar(ctx, c); err != nil {
			return nil, err
		}
		if enable != nil {
			want := enable(d)
			if want != c.Enabled {
				if err := st.SetCalendarEnabled(ctx, c.ID, want); err != nil {
					return nil, fmt.Errorf("registering calendar %q: %w", d.Name, err)
				}
				c.Enabled = want
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// feedID derives a stable feed id from a display name.
func feedID(name string, taken map[string]bool) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	base := strings.TrimSuffix(b.String(), "-")
	if base == "" {
		base = "feed"
	}
	id := base
	for n := 2; taken[id]; n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return id
}
