package database

import (
	"context"
	"time"
)

type FeedRepository interface {
	FindNextUpdatable(ctx context.Context, count int, now time.Time) ([]*Feed, error)
	SaveFeeds(ctx context.Context, feeds []*Feed) error
	GetFeed(ctx context.Context, id int64) (*Feed, error)
	UpsertFeed(ctx context.Context, url string) (*Feed, error)
	UpdatePushLastPing(ctx context.Context, id int64, t time.Time) error
	ListFeeds(ctx context.Context) ([]*Feed, error)
	GetFeedCount(ctx context.Context) (int, error)
}

type EntryRepository interface {
	FindByGUIDs(ctx context.Context, guids []string) ([]*Entry, error)
	SaveEntry(ctx context.Context, entry *Entry) error
	GetEntryCount(ctx context.Context) (int, error)
}

type StatusRepository interface {
	SaveStatuses(ctx context.Context, statuses []*EntryStatus) error
	CountStatuses(ctx context.Context, subscriptionID int64) (int, error)
}

type SubscriptionRepository interface {
	FindSubscriptionsByFeed(ctx context.Context, feedID int64) ([]*Subscription, error)
	Subscribe(ctx context.Context, userName string, feedID int64) (*Subscription, error)
}
