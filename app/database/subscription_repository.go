package database

import (
	"context"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// SubscriptionRepositoryImpl handles database operations for subscriptions
type SubscriptionRepositoryImpl struct {
	db *DB
}

var _ SubscriptionRepository = (*SubscriptionRepositoryImpl)(nil)

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepositoryImpl {
	return &SubscriptionRepositoryImpl{db: db}
}

// FindSubscriptionsByFeed returns all subscriptions bound to a feed
func (r *SubscriptionRepositoryImpl) FindSubscriptionsByFeed(ctx context.Context, feedID int64) ([]*Subscription, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "user_name", "feed_id").From("subscriptions").Where(sb.Equal("feed_id", feedID)).OrderBy("id")

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.UserName, &sub.FeedID); err != nil {
			return nil, fmt.Errorf("failed to scan subscription row: %w", err)
		}
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscription rows: %w", err)
	}
	return subs, nil
}

// Subscribe binds a user to a feed, returning the existing subscription if there is one
func (r *SubscriptionRepositoryImpl) Subscribe(ctx context.Context, userName string, feedID int64) (*Subscription, error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("subscriptions").Cols("user_name", "feed_id").Values(userName, feedID)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to subscribe %s: %w", userName, err)
	}

	sub := Subscription{UserName: userName, FeedID: feedID}
	err := r.db.QueryRowContext(ctx,
		"SELECT id FROM subscriptions WHERE user_name = ? AND feed_id = ?", userName, feedID).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}
