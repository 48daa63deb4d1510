package api

import (
	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/refresh"
	"github.com/prometheus/client_golang/prometheus"
)

// Scheduler accepts out-of-band refresh requests and reports lifecycle state counts
type Scheduler interface {
	Submit(feed *database.Feed)
	StateCounts() map[string]int
}

var _ Scheduler = (*refresh.TaskGiver)(nil)

type QueueSizer interface {
	QueueSize() int
}

var _ QueueSizer = (*refresh.Updater)(nil)

type Handler struct {
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
	scheduler Scheduler
	queue     QueueSizer
	gatherer  prometheus.Gatherer
	version   string
}

type feedStats struct {
	Total    int `json:"total"`
	Failing  int `json:"failing"`
	Disabled int `json:"disabled"`
	WebSub   int `json:"websub"`
	Never    int `json:"never_updated"`
}
