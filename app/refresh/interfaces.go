package refresh

import (
	"context"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/feed"
	"github.com/lysyi3m/feed-refresh/app/fetcher"
)

// Renewer schedules a WebSub subscription renewal when one is due
type Renewer interface {
	ScheduleIfDue(feed *database.Feed)
}

type EntryUpdater interface {
	UpdateEntries(ctx context.Context, feed *database.Feed, entries []database.Entry) (Stats, error)
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url, lastModified, etag string) (*fetcher.Result, error)
}

type FeedParser interface {
	Run(data []byte) (*feed.Metadata, []database.Entry, error)
}

type feedTaker interface {
	Take(ctx context.Context) *database.Feed
}

type feedReturner interface {
	GiveBack(feed *database.Feed)
}

type feedUpdater interface {
	UpdateFeed(ctx context.Context, feed *database.Feed, entries []database.Entry) error
}
