package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

var feedColumns = []string{
	"id", "url", "link", "last_updated", "last_update_success", "etag", "last_modified",
	"push_hub", "push_topic", "push_last_ping", "disabled_until", "error_count", "message", "created_at",
}

// FeedRepositoryImpl handles database operations for feeds
type FeedRepositoryImpl struct {
	db              *DB
	refreshInterval time.Duration
}

var _ FeedRepository = (*FeedRepositoryImpl)(nil)

// NewFeedRepository creates a new feed repository. Feeds polled less than
// refreshInterval ago are not returned by FindNextUpdatable.
func NewFeedRepository(db *DB, refreshInterval time.Duration) *FeedRepositoryImpl {
	return &FeedRepositoryImpl{db: db, refreshInterval: refreshInterval}
}

// FindNextUpdatable returns up to count feeds due for polling, oldest first
func (r *FeedRepositoryImpl) FindNextUpdatable(ctx context.Context, count int, now time.Time) ([]*Feed, error) {
	threshold := now.Add(-r.refreshInterval).UnixMilli()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").
		Where(
			sb.Or(sb.IsNull("disabled_until"), sb.LessThan("disabled_until", now.UnixMilli())),
			sb.Or(sb.IsNull("last_updated"), sb.LessThan("last_updated", threshold)),
		).
		OrderBy("last_updated").Asc().
		Limit(count)

	query, args := sb.Build()
	feeds, err := r.queryFeeds(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find updatable feeds: %w", err)
	}
	return feeds, nil
}

// SaveFeeds writes the polling metadata of all feeds in a single transaction.
// push_last_ping is owned by the WebSub renewal path and is left untouched.
func (r *FeedRepositoryImpl) SaveFeeds(ctx context.Context, feeds []*Feed) error {
	if len(feeds) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, f := range feeds {
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("feeds").
			Set(
				ub.Assign("link", f.Link),
				ub.Assign("last_updated", toMillis(f.LastUpdated)),
				ub.Assign("last_update_success", toMillis(f.LastUpdateSuccess)),
				ub.Assign("etag", f.ETag),
				ub.Assign("last_modified", f.LastModified),
				ub.Assign("push_hub", f.PushHub),
				ub.Assign("push_topic", f.PushTopic),
				ub.Assign("disabled_until", toMillis(f.DisabledUntil)),
				ub.Assign("error_count", f.ErrorCount),
				ub.Assign("message", f.Message),
			).
			Where(ub.Equal("id", f.ID))

		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update feed %d: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feeds: %w", err)
	}
	return nil
}

// GetFeed retrieves a feed by ID, returning nil when it does not exist
func (r *FeedRepositoryImpl) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("id", id))

	query, args := sb.Build()
	feed, err := scanFeed(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

// UpsertFeed registers a feed URL and returns the stored feed
func (r *FeedRepositoryImpl) UpsertFeed(ctx context.Context, url string) (*Feed, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("feeds").Cols("url", "created_at").Values(url, time.Now().UnixMilli())

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to upsert feed: %w", err)
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("url", url))

	query, args = sb.Build()
	feed, err := scanFeed(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to load upserted feed: %w", err)
	}
	return feed, nil
}

// UpdatePushLastPing records a successful WebSub subscription request
func (r *FeedRepositoryImpl) UpdatePushLastPing(ctx context.Context, id int64, t time.Time) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").Set(ub.Assign("push_last_ping", t.UnixMilli())).Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update push last ping: %w", err)
	}
	return nil
}

// ListFeeds returns all feeds ordered by ID
func (r *FeedRepositoryImpl) ListFeeds(ctx context.Context) ([]*Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").OrderBy("id")

	query, args := sb.Build()
	feeds, err := r.queryFeeds(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// GetFeedCount returns the total number of feeds
func (r *FeedRepositoryImpl) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *FeedRepositoryImpl) queryFeeds(ctx context.Context, query string, args ...any) ([]*Feed, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}
	return feeds, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var feed Feed
	var lastUpdated, lastUpdateSuccess, pushLastPing, disabledUntil *int64
	var createdAt int64

	err := row.Scan(
		&feed.ID, &feed.URL, &feed.Link, &lastUpdated, &lastUpdateSuccess, &feed.ETag, &feed.LastModified,
		&feed.PushHub, &feed.PushTopic, &pushLastPing, &disabledUntil, &feed.ErrorCount, &feed.Message, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	feed.LastUpdated = fromMillis(lastUpdated)
	feed.LastUpdateSuccess = fromMillis(lastUpdateSuccess)
	feed.PushLastPing = fromMillis(pushLastPing)
	feed.DisabledUntil = fromMillis(disabledUntil)
	feed.CreatedAt = time.UnixMilli(createdAt)

	return &feed, nil
}
