package database

import (
	"context"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

// EntryRepositoryImpl handles database operations for entries
type EntryRepositoryImpl struct {
	db *DB
}

var _ EntryRepository = (*EntryRepositoryImpl)(nil)

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *DB) *EntryRepositoryImpl {
	return &EntryRepositoryImpl{db: db}
}

// FindByGUIDs returns every stored entry whose GUID is in guids, with its feed set loaded
func (r *EntryRepositoryImpl) FindByGUIDs(ctx context.Context, guids []string) ([]*Entry, error) {
	guids = lo.Uniq(guids)
	if len(guids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "guid", "guid_hash", "url", "title", "content", "author", "published", "inserted").
		From("entries").
		Where(sb.In("guid", lo.ToAnySlice(guids)...))

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find entries by guid: %w", err)
	}

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var published *int64
		var inserted int64
		if err := rows.Scan(&entry.ID, &entry.GUID, &entry.GUIDHash, &entry.URL, &entry.Title,
			&entry.Content, &entry.Author, &published, &inserted); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		entry.Published = fromMillis(published)
		entry.Inserted = time.UnixMilli(inserted)
		entries = append(entries, &entry)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	if len(entries) == 0 {
		return nil, nil
	}

	if err := r.loadFeeds(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *EntryRepositoryImpl) loadFeeds(ctx context.Context, entries []*Entry) error {
	byID := lo.KeyBy(entries, func(e *Entry) int64 { return e.ID })

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("entry_id", "feed_id").
		From("feed_entries").
		Where(sb.In("entry_id", lo.ToAnySlice(lo.Keys(byID))...)).
		OrderBy("feed_id")

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load entry feeds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, feedID int64
		if err := rows.Scan(&entryID, &feedID); err != nil {
			return fmt.Errorf("failed to scan feed entry row: %w", err)
		}
		if entry, ok := byID[entryID]; ok {
			entry.Feeds = append(entry.Feeds, feedID)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating feed entry rows: %w", err)
	}
	return nil
}

// SaveEntry inserts a new entry or adds the missing feed links of an existing one.
// Stored content is never overwritten.
func (r *EntryRepositoryImpl) SaveEntry(ctx context.Context, entry *Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if entry.ID == 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("entries").
			Cols("guid", "guid_hash", "url", "title", "content", "author", "published", "inserted").
			Values(entry.GUID, entry.GUIDHash, entry.URL, entry.Title, entry.Content, entry.Author,
				toMillis(entry.Published), entry.Inserted.UnixMilli())

		query, args := ib.Build()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", entry.GUID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		entry.ID = id
	}

	if len(entry.Feeds) > 0 {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertIgnoreInto("feed_entries").Cols("feed_id", "entry_id")
		for _, feedID := range entry.Feeds {
			ib.Values(feedID, entry.ID)
		}

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to link entry %d to feeds: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entry: %w", err)
	}
	return nil
}

// GetEntryCount returns the total number of entries
func (r *EntryRepositoryImpl) GetEntryCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}
