package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/metrics"
)

const (
	heavyLoadThreshold  = 10 * time.Minute
	normalLoadThreshold = time.Minute
	refillFactor        = 3
)

// FeedState is the position of a feed in the refresh cycle. Idle feeds are not tracked.
type FeedState int

const (
	StateIdle FeedState = iota
	StateDue
	StateInFlight
	StateCompleted
)

func (s FeedState) String() string {
	switch s {
	case StateDue:
		return "due"
	case StateInFlight:
		return "in_flight"
	case StateCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// TaskGiver hands due feeds to the fetch workers and collects them back once
// their update has been applied. Feeds are persisted in bulk on refill.
type TaskGiver struct {
	feedRepo          database.FeedRepository
	metrics           *metrics.Metrics
	renewer           Renewer
	backgroundThreads int
	heavyLoad         bool
	now               func() time.Time

	takeMu sync.Mutex
	due    []*database.Feed

	addMu    sync.Mutex
	addQueue []*database.Feed

	persistMu    sync.Mutex
	persistQueue []*database.Feed

	stateMu sync.Mutex
	states  map[int64]FeedState
}

// NewTaskGiver creates a task giver. renewer may be nil when WebSub is disabled.
func NewTaskGiver(feedRepo database.FeedRepository, m *metrics.Metrics, renewer Renewer, backgroundThreads int, heavyLoad bool) *TaskGiver {
	return &TaskGiver{
		feedRepo:          feedRepo,
		metrics:           m,
		renewer:           renewer,
		backgroundThreads: max(backgroundThreads, 1),
		heavyLoad:         heavyLoad,
		now:               time.Now,
		states:            make(map[int64]FeedState),
	}
}

// Submit queues a feed for refresh on the next refill. Cached validators are
// dropped when the feed has not been polled recently, forcing a full fetch.
func (g *TaskGiver) Submit(feed *database.Feed) {
	threshold := g.now().Add(-normalLoadThreshold)
	if g.heavyLoad {
		threshold = g.now().Add(-heavyLoadThreshold)
	}

	if feed.LastUpdated == nil || feed.LastUpdated.Before(threshold) {
		feed.ETag = ""
		feed.LastModified = ""
	}

	g.addMu.Lock()
	g.addQueue = append(g.addQueue, feed)
	g.addMu.Unlock()
}

// Take returns the next due feed or nil when nothing is due
func (g *TaskGiver) Take(ctx context.Context) *database.Feed {
	g.takeMu.Lock()
	defer g.takeMu.Unlock()

	feed := g.pop()
	if feed == nil {
		g.refill(ctx)
		feed = g.pop()
	}
	if feed == nil {
		return nil
	}

	now := g.now()
	feed.LastUpdated = &now
	g.metrics.FeedsRefreshed.Inc()

	return feed
}

// GiveBack returns a feed whose cycle finished. It is persisted on the next refill.
func (g *TaskGiver) GiveBack(feed *database.Feed) {
	g.stateMu.Lock()
	g.states[feed.ID] = StateCompleted
	g.stateMu.Unlock()

	g.persistMu.Lock()
	g.persistQueue = append(g.persistQueue, feed)
	g.persistMu.Unlock()
}

// State reports where a feed is in the refresh cycle
func (g *TaskGiver) State(feedID int64) FeedState {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.states[feedID]
}

// StateCounts returns the number of tracked feeds per state
func (g *TaskGiver) StateCounts() map[string]int {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	counts := make(map[string]int)
	for _, state := range g.states {
		counts[state.String()]++
	}
	return counts
}

// pop removes the first due feed and marks it in flight. Must hold takeMu.
func (g *TaskGiver) pop() *database.Feed {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	for len(g.due) > 0 {
		feed := g.due[0]
		g.due[0] = nil
		g.due = g.due[1:]

		if g.states[feed.ID] == StateInFlight {
			continue
		}
		g.states[feed.ID] = StateInFlight
		return feed
	}
	return nil
}

// refill loads due feeds from storage, merges queued submissions and given
// back feeds by ID and persists the merged set in one write. Must hold takeMu.
func (g *TaskGiver) refill(ctx context.Context) {
	now := g.now()
	persisted := g.drain(&g.persistMu, &g.persistQueue)

	stored, err := g.feedRepo.FindNextUpdatable(ctx, refillFactor*g.backgroundThreads, now)
	if err != nil {
		slog.Error("Failed to find updatable feeds", "error", err)
	}

	added := g.drain(&g.addMu, &g.addQueue)

	merged := newFeedSet()
	var dueIDs []int64
	var deferred []*database.Feed

	g.stateMu.Lock()

	returned := make(map[int64]bool, len(persisted))
	for _, feed := range persisted {
		returned[feed.ID] = true
	}

	for _, feed := range stored {
		// Storage lags behind feeds that are queued, running or just returned
		if _, tracked := g.states[feed.ID]; tracked {
			continue
		}
		if merged.put(feed) {
			dueIDs = append(dueIDs, feed.ID)
		}
	}

	for _, feed := range added {
		state := g.states[feed.ID]
		if state == StateInFlight || (state == StateCompleted && !returned[feed.ID]) {
			deferred = append(deferred, feed)
			continue
		}
		if state == StateDue {
			continue
		}
		if merged.put(feed) {
			dueIDs = append(dueIDs, feed.ID)
		}
	}

	for _, feed := range merged.feeds() {
		feed.LastUpdated = &now
	}

	// Due instances are fixed before returned feeds join the set; a returned
	// feed only replaces the persisted row, not a resubmitted instance.
	for _, id := range dueIDs {
		g.due = append(g.due, merged.get(id))
		g.states[id] = StateDue
	}

	for _, feed := range persisted {
		feed.LastUpdated = &now
		merged.put(feed)
	}
	for id := range returned {
		if g.states[id] == StateCompleted {
			delete(g.states, id)
		}
	}

	g.stateMu.Unlock()

	if len(deferred) > 0 {
		g.addMu.Lock()
		g.addQueue = append(g.addQueue, deferred...)
		g.addMu.Unlock()
	}

	if merged.len() > 0 {
		if err := g.feedRepo.SaveFeeds(ctx, merged.feeds()); err != nil {
			slog.Error("Failed to persist feeds", "count", merged.len(), "error", err)
		}
	}

	if g.renewer != nil {
		for _, feed := range persisted {
			g.renewer.ScheduleIfDue(feed)
		}
	}

	if len(dueIDs) > 0 || len(persisted) > 0 {
		slog.Debug("Refill completed", "due", len(dueIDs), "stored", len(stored), "added", len(added), "returned", len(persisted), "deferred", len(deferred))
	}
}

func (g *TaskGiver) drain(mu *sync.Mutex, queue *[]*database.Feed) []*database.Feed {
	mu.Lock()
	defer mu.Unlock()

	drained := *queue
	*queue = nil
	return drained
}

// feedSet keeps feeds unique by ID in first-seen order; a later instance replaces an earlier one
type feedSet struct {
	order []int64
	byID  map[int64]*database.Feed
}

func newFeedSet() *feedSet {
	return &feedSet{byID: make(map[int64]*database.Feed)}
}

// put stores feed and reports whether its ID was new to the set
func (s *feedSet) put(feed *database.Feed) bool {
	_, exists := s.byID[feed.ID]
	if !exists {
		s.order = append(s.order, feed.ID)
	}
	s.byID[feed.ID] = feed
	return !exists
}

func (s *feedSet) get(id int64) *database.Feed {
	return s.byID[id]
}

func (s *feedSet) len() int {
	return len(s.order)
}

func (s *feedSet) feeds() []*database.Feed {
	feeds := make([]*database.Feed, 0, len(s.order))
	for _, id := range s.order {
		feeds = append(feeds, s.byID[id])
	}
	return feeds
}
