package refresh

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/feed"
	"github.com/lysyi3m/feed-refresh/app/metrics"
	"github.com/samber/lo"
)

// Stats summarizes what an update did to the entry store
type Stats struct {
	Created  int
	Linked   int
	Statuses int
}

// UpdateService merges a feed's fetched entries into the shared entry store.
// Callers must hold the stripes of every entry key in the batch.
type UpdateService struct {
	entryRepo  database.EntryRepository
	statusRepo database.StatusRepository
	subRepo    database.SubscriptionRepository
	sanitizer  *feed.Sanitizer
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewUpdateService(entryRepo database.EntryRepository, statusRepo database.StatusRepository,
	subRepo database.SubscriptionRepository, sanitizer *feed.Sanitizer, m *metrics.Metrics) *UpdateService {
	return &UpdateService{
		entryRepo:  entryRepo,
		statusRepo: statusRepo,
		subRepo:    subRepo,
		sanitizer:  sanitizer,
		metrics:    m,
		now:        time.Now,
	}
}

// UpdateEntries stores entries new to the store, links known entries to f and
// creates a status for every subscriber of f on each entry it gained.
// Stored content is never overwritten.
func (s *UpdateService) UpdateEntries(ctx context.Context, f *database.Feed, entries []database.Entry) (Stats, error) {
	var stats Stats
	if len(entries) == 0 {
		return stats, nil
	}

	guids := lo.Map(entries, func(e database.Entry, _ int) string { return e.GUID })
	existing, err := s.entryRepo.FindByGUIDs(ctx, guids)
	if err != nil {
		return stats, fmt.Errorf("failed to find existing entries: %w", err)
	}
	byKey := lo.KeyBy(existing, func(e *database.Entry) string { return e.GUIDHash })

	baseURL := cmp.Or(f.Link, f.URL)
	seen := make(map[string]bool, len(entries))
	var pending []pendingEntry

	for i := range entries {
		entry := &entries[i]
		if entry.GUIDHash == "" {
			entry.GUIDHash = feed.EntryKey(entry.GUID, entry.URL)
		}
		if seen[entry.GUIDHash] {
			continue
		}
		seen[entry.GUIDHash] = true

		if stored, ok := byKey[entry.GUIDHash]; ok {
			if stored.AddFeed(f.ID) {
				pending = append(pending, pendingEntry{entry: stored})
			}
			continue
		}

		entry.ID = 0
		entry.Title = s.sanitizer.Title(entry.Title, baseURL)
		entry.Content = s.sanitizer.Run(entry.Content, baseURL)
		entry.Inserted = s.now()
		entry.Feeds = []int64{f.ID}
		pending = append(pending, pendingEntry{entry: entry, created: true})
	}

	if len(pending) == 0 {
		return stats, nil
	}

	subs, err := s.subRepo.FindSubscriptionsByFeed(ctx, f.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to find subscriptions: %w", err)
	}

	for _, p := range pending {
		entry := p.entry
		if err := s.entryRepo.SaveEntry(ctx, entry); err != nil {
			return stats, fmt.Errorf("failed to save entry: %w", err)
		}
		if p.created {
			stats.Created++
			s.metrics.EntriesCreated.Inc()
		} else {
			stats.Linked++
			s.metrics.EntriesLinked.Inc()
		}

		statuses := lo.Map(subs, func(sub *database.Subscription, _ int) *database.EntryStatus {
			return &database.EntryStatus{EntryID: entry.ID, SubscriptionID: sub.ID}
		})
		if err := s.statusRepo.SaveStatuses(ctx, statuses); err != nil {
			return stats, fmt.Errorf("failed to save entry statuses: %w", err)
		}
		stats.Statuses += len(statuses)
		s.metrics.EntryStatusesCreated.Add(float64(len(statuses)))
	}

	return stats, nil
}

type pendingEntry struct {
	entry   *database.Entry
	created bool
}
