package database

import (
	"slices"
	"time"
)

type Feed struct {
	ID                int64
	URL               string
	Link              string // Base URL used to resolve relative links in entry content
	LastUpdated       *time.Time
	LastUpdateSuccess *time.Time
	ETag              string
	LastModified      string
	PushHub           string
	PushTopic         string
	PushLastPing      *time.Time
	DisabledUntil     *time.Time
	ErrorCount        int
	Message           string
	CreatedAt         time.Time
}

type Entry struct {
	ID        int64
	GUID      string
	GUIDHash  string // Dedup key derived from GUID and URL
	URL       string
	Title     string
	Content   string
	Author    string
	Published *time.Time
	Inserted  time.Time
	Feeds     []int64 // IDs of every feed the entry was seen in
}

func (e *Entry) HasFeed(feedID int64) bool {
	return slices.Contains(e.Feeds, feedID)
}

func (e *Entry) AddFeed(feedID int64) bool {
	if e.HasFeed(feedID) {
		return false
	}
	e.Feeds = append(e.Feeds, feedID)
	return true
}

type EntryStatus struct {
	ID             int64
	EntryID        int64
	SubscriptionID int64
	Read           bool
	Starred        bool
}

type Subscription struct {
	ID       int64
	UserName string
	FeedID   int64
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(*v)
	return &t
}
