// Package metadata implements C7: reconciling stored Event rows against
// upstream TE event metadata, with fail-closed URL regeneration and a
// dry-run mode — a URL rebuild failure blocks the write regardless of
// dry_run, since a stale-but-valid URL is safer than publishing a
// broken one.
package metadata

import (
	"context"
	"time"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/model"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/teclient"
	"github.com/Nick-Wu5/HistoricalTicketData/internal/urlbuilder"

	"github.com/sirupsen/logrus"
)

const eventDuration = 4 * time.Hour

// eventFetcher is the subset of teclient.Client this package depends
// on, narrowed to a local interface for fakeability in tests.
type eventFetcher interface {
	Event(ctx context.Context, teEventID int64) (*teclient.EventPayload, error)
}

// eventStore is the subset of repository.EventRepository this package
// depends on.
type eventStore interface {
	ListByIDs(ctx context.Context, ids []int64) ([]model.Event, error)
	Upsert(ctx context.Context, ev *model.Event) error
}

// Refresher reconciles stored events against upstream TE metadata.
type Refresher struct {
	events  eventStore
	client  eventFetcher
	baseURL string
	logger  *logrus.Logger
	now     func() time.Time
}

func New(events eventStore, client eventFetcher, baseURL string, logger *logrus.Logger, now func() time.Time) *Refresher {
	if now == nil {
		now = time.Now
	}
	return &Refresher{events: events, client: client, baseURL: baseURL, logger: logger, now: now}
}

// EventResult is the per-event outcome spec §4.7 reports.
type EventResult struct {
	TEEventID int64
	Status    string // "updated", "unchanged" or "error"
	Changes   []string
	Error     string
}

// Summary is the output of Refresh (spec §4.7's "summary counts").
type Summary struct {
	Updated   int
	Unchanged int
	Errors    int
	Events    []EventResult
}

// SelectIDs implements spec §4.7's id-selection precedence: query
// event_id > body event_id > body te_event_ids[] > "all" (empty slice).
func SelectIDs(queryEventID, bodyEventID int64, bodyEventIDs []int64) []int64 {
	if queryEventID != 0 {
		return []int64{queryEventID}
	}
	if bodyEventID != 0 {
		return []int64{bodyEventID}
	}
	if len(bodyEventIDs) > 0 {
		return bodyEventIDs
	}
	return nil
}

// Refresh reconciles every event named by ids (or all events, when ids
// is empty) against upstream TE metadata.
func (r *Refresher) Refresh(ctx context.Context, ids []int64, dryRun bool) (Summary, error) {
	events, err := r.events.ListByIDs(ctx, ids)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Events: make([]EventResult, 0, len(events))}
	for _, ev := range events {
		result := r.refreshOne(ctx, ev, dryRun)
		summary.Events = append(summary.Events, result)
		switch {
		case result.Error != "":
			summary.Errors++
		case len(result.Changes) > 0:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}
	return summary, nil
}

func (r *Refresher) refreshOne(ctx context.Context, stored model.Event, dryRun bool) EventResult {
	upstream, err := r.client.Event(ctx, stored.TEEventID)
	if err != nil {
		return EventResult{TEEventID: stored.TEEventID, Status: "error", Error: err.Error()}
	}

	startsAt, err := time.Parse(time.RFC3339, upstream.OccursAt)
	if err != nil {
		return EventResult{TEEventID: stored.TEEventID, Status: "error", Error: "invalid occurs_at: " + err.Error()}
	}

	now := r.now()
	endsAt := startsAt.Add(eventDuration)
	hasEnded := now.After(endsAt)

	pollingEnabled := stored.PollingEnabled
	if hasEnded {
		pollingEnabled = false
	}

	endedAt := stored.EndedAt
	if endedAt == nil && hasEnded {
		endedAt = &now
	}

	titleChanged := stored.Title != upstream.Name
	startsChanged := stored.StartsAt == nil || !stored.StartsAt.Equal(startsAt)
	endsChanged := stored.EndsAt == nil || !stored.EndsAt.Equal(endsAt)

	oltURL := stored.OltURL
	if stored.OltURL == nil || titleChanged || startsChanged || endsChanged {
		built, err := urlbuilder.Build(urlbuilder.Input{
			ID:        upstream.ID,
			Name:      upstream.Name,
			OccursAt:  startsAt,
			City:      upstream.Venue.City,
			State:     upstream.Venue.State,
			VenueName: upstream.Venue.Name,
			Category:  upstream.Category.Name,
			Timezone:  upstream.Timezone,
			BaseURL:   r.baseURL,
		})
		if err != nil {
			return EventResult{TEEventID: stored.TEEventID, Status: "error", Error: err.Error()}
		}
		oltURL = &built
	}

	changes := diff(stored, upstream.Name, startsAt, endsAt, pollingEnabled, endedAt, oltURL)
	if len(changes) == 0 {
		return EventResult{TEEventID: stored.TEEventID, Status: "unchanged"}
	}
	changes = append(changes, "updated_at")
	if dryRun {
		return EventResult{TEEventID: stored.TEEventID, Status: "updated", Changes: changes}
	}

	updated := stored
	updated.Title = upstream.Name
	updated.StartsAt = &startsAt
	updated.EndsAt = &endsAt
	updated.PollingEnabled = pollingEnabled
	updated.EndedAt = endedAt
	updated.OltURL = oltURL
	updated.UpdatedAt = now

	if err := r.events.Upsert(ctx, &updated); err != nil {
		return EventResult{TEEventID: stored.TEEventID, Status: "error", Error: err.Error()}
	}
	return EventResult{TEEventID: stored.TEEventID, Status: "updated", Changes: changes}
}

func diff(stored model.Event, title string, startsAt, endsAt time.Time, pollingEnabled bool, endedAt *time.Time, oltURL *string) []string {
	var changes []string
	if stored.Title != title {
		changes = append(changes, "title")
	}
	if stored.StartsAt == nil || !stored.StartsAt.Equal(startsAt) {
		changes = append(changes, "starts_at")
	}
	if stored.EndsAt == nil || !stored.EndsAt.Equal(endsAt) {
		changes = append(changes, "ends_at")
	}
	if stored.PollingEnabled != pollingEnabled {
		changes = append(changes, "polling_enabled")
	}
	if (stored.EndedAt == nil) != (endedAt == nil) {
		changes = append(changes, "ended_at")
	}
	if (stored.OltURL == nil) != (oltURL == nil) || (stored.OltURL != nil && oltURL != nil && *stored.OltURL != *oltURL) {
		changes = append(changes, "olt_url")
	}
	return changes
}
