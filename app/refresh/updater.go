package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/feed"
	"github.com/lysyi3m/feed-refresh/app/metrics"
	"github.com/lysyi3m/feed-refresh/app/tasks"
)

const queueCapacityFactor = 500

// Updater applies fetched entry batches on a bounded worker pool. Entries are
// locked by dedup key so feeds sharing entries can be updated concurrently.
type Updater struct {
	service  EntryUpdater
	returner feedReturner
	renewer  Renewer
	metrics  *metrics.Metrics
	stripes  *Stripes
	pool     *tasks.Pool
}

type UpdaterOptions struct {
	Threads     int
	Stripes     int
	LockTimeout time.Duration
}

// NewUpdater creates the update pipeline. renewer may be nil when WebSub is disabled.
func NewUpdater(service EntryUpdater, returner feedReturner, renewer Renewer, m *metrics.Metrics, opts UpdaterOptions) *Updater {
	threads := max(opts.Threads, 1)

	u := &Updater{
		service:  service,
		returner: returner,
		renewer:  renewer,
		metrics:  m,
		stripes:  NewStripes(opts.Stripes, opts.LockTimeout),
		pool:     tasks.NewPool("updater", threads, queueCapacityFactor*threads),
	}
	m.RegisterQueueSize(u.QueueSize)

	return u
}

func (u *Updater) Start() {
	u.pool.Start()
}

// Stop interrupts running updates and drops queued ones
func (u *Updater) Stop() {
	u.pool.Stop()
}

// UpdateFeed queues a feed's entries for storage, blocking while the queue is full
func (u *Updater) UpdateFeed(ctx context.Context, f *database.Feed, entries []database.Entry) error {
	task := &updateTask{
		Task:    tasks.NewTask(tasks.TaskTypeUpdateFeed, f.URL),
		updater: u,
		feed:    f,
		entries: entries,
	}

	if err := u.pool.Submit(ctx, task); err != nil {
		return fmt.Errorf("failed to queue update of %s: %w", f.URL, err)
	}
	return nil
}

// QueueSize returns the number of updates waiting for a worker
func (u *Updater) QueueSize() int {
	return u.pool.QueueSize()
}

type updateTask struct {
	tasks.Task
	updater *Updater
	feed    *database.Feed
	entries []database.Entry
	stats   Stats
}

func (t *updateTask) Execute(ctx context.Context) error {
	if len(t.entries) == 0 {
		return nil
	}

	for i := range t.entries {
		t.entries[i].GUIDHash = feed.EntryKey(t.entries[i].GUID, t.entries[i].URL)
	}
	slices.SortStableFunc(t.entries, func(a, b database.Entry) int {
		return strings.Compare(a.GUIDHash, b.GUIDHash)
	})

	keys := make([]string, 0, len(t.entries))
	for _, entry := range t.entries {
		keys = append(keys, entry.GUIDHash)
	}

	release, err := t.updater.stripes.Lock(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to lock entries of %s: %w", t.feed.URL, err)
	}
	defer release()

	stats, err := t.updater.service.UpdateEntries(ctx, t.feed, t.entries)
	if err != nil {
		return fmt.Errorf("failed to update entries of %s: %w", t.feed.URL, err)
	}
	t.stats = stats

	return nil
}

// Complete runs after every executed update, including failed and panicked ones,
// and hands the feed back to the task giver.
func (t *updateTask) Complete(err error) {
	u := t.updater

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
		t.feed.DisabledUntil = nil
	} else if t.stats.Created > 0 || t.stats.Linked > 0 {
		slog.Info("Task completed",
			"type", "UpdateFeed",
			"feed", t.feed.URL,
			"duration", t.GetDuration(),
			"total", len(t.entries),
			"created", t.stats.Created,
			"linked", t.stats.Linked,
			"statuses", t.stats.Statuses)
	}

	if u.renewer != nil {
		u.renewer.ScheduleIfDue(t.feed)
	}

	u.metrics.FeedsUpdated.WithLabelValues(result).Inc()
	u.returner.GiveBack(t.feed)
}
