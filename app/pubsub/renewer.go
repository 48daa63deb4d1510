package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/metrics"
	"github.com/lysyi3m/feed-refresh/app/tasks"
)

const (
	RenewalInterval = 72 * time.Hour
	RetryCooldown   = time.Hour
	renewerThreads  = 2
	renewerQueue    = 1000
)

// Subscriber sends a subscription request for a feed
type Subscriber interface {
	Subscribe(ctx context.Context, feed *database.Feed) error
}

// IsRenewalDue reports whether a feed advertises a hub and has not been
// subscribed within RenewalInterval.
func IsRenewalDue(feed *database.Feed, now time.Time) bool {
	if feed.PushHub == "" || feed.PushTopic == "" {
		return false
	}
	return feed.PushLastPing == nil || feed.PushLastPing.Before(now.Add(-RenewalInterval))
}

// Renewer runs subscription renewals in the background. A feed is queued at
// most once at a time and is not retried within RetryCooldown of an attempt.
type Renewer struct {
	subscriber Subscriber
	metrics    *metrics.Metrics
	pool       *tasks.Pool
	now        func() time.Time

	mu        sync.Mutex
	pending   map[int64]bool
	attempted map[int64]time.Time
}

func NewRenewer(subscriber Subscriber, m *metrics.Metrics) *Renewer {
	return &Renewer{
		subscriber: subscriber,
		metrics:    m,
		pool:       tasks.NewPool("renewer", renewerThreads, renewerQueue),
		now:        time.Now,
		pending:    make(map[int64]bool),
		attempted:  make(map[int64]time.Time),
	}
}

func (r *Renewer) Start() {
	r.pool.Start()
}

func (r *Renewer) Stop() {
	r.pool.Stop()
}

// ScheduleIfDue queues a renewal for feed when it is due. It never blocks.
func (r *Renewer) ScheduleIfDue(feed *database.Feed) {
	now := r.now()
	if !IsRenewalDue(feed, now) {
		return
	}

	r.mu.Lock()
	if r.pending[feed.ID] {
		r.mu.Unlock()
		return
	}
	if last, ok := r.attempted[feed.ID]; ok && now.Sub(last) < RetryCooldown {
		r.mu.Unlock()
		return
	}
	r.pending[feed.ID] = true
	r.mu.Unlock()

	snapshot := *feed
	task := &renewTask{
		Task:    tasks.NewTask(tasks.TaskTypeRenewSubscription, feed.URL),
		renewer: r,
		feed:    &snapshot,
	}

	if err := r.pool.TrySubmit(task); err != nil {
		r.mu.Lock()
		delete(r.pending, feed.ID)
		r.mu.Unlock()

		if !errors.Is(err, tasks.ErrPoolStopped) {
			slog.Warn("Dropped hub subscription renewal", "feed", feed.URL, "error", err)
		}
	}
}

type renewTask struct {
	tasks.Task
	renewer *Renewer
	feed    *database.Feed
}

func (t *renewTask) Execute(ctx context.Context) error {
	return t.renewer.subscriber.Subscribe(ctx, t.feed)
}

func (t *renewTask) Complete(err error) {
	r := t.renewer

	r.mu.Lock()
	delete(r.pending, t.feed.ID)
	r.attempted[t.feed.ID] = r.now()
	r.mu.Unlock()

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}
	r.metrics.WebSubRenewals.WithLabelValues(result).Inc()
}
