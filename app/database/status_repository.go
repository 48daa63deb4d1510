package database

import (
	"context"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// StatusRepositoryImpl handles database operations for entry statuses
type StatusRepositoryImpl struct {
	db *DB
}

var _ StatusRepository = (*StatusRepositoryImpl)(nil)

// NewStatusRepository creates a new status repository
func NewStatusRepository(db *DB) *StatusRepositoryImpl {
	return &StatusRepositoryImpl{db: db}
}

// SaveStatuses inserts statuses in one statement. A pair that already has a
// status keeps its existing read/star state.
func (r *StatusRepositoryImpl) SaveStatuses(ctx context.Context, statuses []*EntryStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("entry_statuses").Cols("entry_id", "subscription_id", "read", "starred")
	for _, s := range statuses {
		ib.Values(s.EntryID, s.SubscriptionID, s.Read, s.Starred)
	}

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save entry statuses: %w", err)
	}
	return nil
}

// CountStatuses returns the number of statuses held by a subscription
func (r *StatusRepositoryImpl) CountStatuses(ctx context.Context, subscriptionID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entry_statuses WHERE subscription_id = ?", subscriptionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entry statuses: %w", err)
	}
	return count, nil
}
