package refresh

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
)

type MockFeedRepository struct {
	mu        sync.Mutex
	updatable []database.Feed
	saved     [][]database.Feed
	findErr   error
}

var _ database.FeedRepository = (*MockFeedRepository)(nil)

func (m *MockFeedRepository) FindNextUpdatable(ctx context.Context, count int, now time.Time) ([]*database.Feed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}

	var feeds []*database.Feed
	for _, f := range m.updatable {
		if len(feeds) == count {
			break
		}
		feed := f
		feeds = append(feeds, &feed)
	}
	return feeds, nil
}

func (m *MockFeedRepository) SaveFeeds(ctx context.Context, feeds []*database.Feed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make([]database.Feed, 0, len(feeds))
	for _, f := range feeds {
		batch = append(batch, *f)
	}
	m.saved = append(m.saved, batch)
	return nil
}

func (m *MockFeedRepository) GetFeed(ctx context.Context, id int64) (*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) UpsertFeed(ctx context.Context, url string) (*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) UpdatePushLastPing(ctx context.Context, id int64, t time.Time) error {
	return nil
}

func (m *MockFeedRepository) ListFeeds(ctx context.Context) ([]*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	return len(m.updatable), nil
}

func (m *MockFeedRepository) setUpdatable(feeds ...database.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatable = feeds
}

func (m *MockFeedRepository) saves() [][]database.Feed {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.saved)
}

type MockEntryRepository struct {
	mu      sync.Mutex
	nextID  int64
	byKey   map[string]*database.Entry
	findErr error
	saved   int
	// failAfter makes SaveEntry fail once that many entries were saved; zero never fails
	failAfter int
}

var _ database.EntryRepository = (*MockEntryRepository)(nil)

func NewMockEntryRepository() *MockEntryRepository {
	return &MockEntryRepository{byKey: make(map[string]*database.Entry)}
}

func (m *MockEntryRepository) FindByGUIDs(ctx context.Context, guids []string) ([]*database.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.findErr != nil {
		return nil, m.findErr
	}

	var found []*database.Entry
	for _, entry := range m.byKey {
		if slices.Contains(guids, entry.GUID) {
			copied := *entry
			copied.Feeds = slices.Clone(entry.Feeds)
			found = append(found, &copied)
		}
	}
	return found, nil
}

func (m *MockEntryRepository) SaveEntry(ctx context.Context, entry *database.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAfter > 0 && m.saved >= m.failAfter {
		return errors.New("disk I/O error")
	}
	m.saved++

	if entry.ID == 0 {
		if _, exists := m.byKey[entry.GUIDHash]; exists {
			return errors.New("UNIQUE constraint failed: entries.guid_hash")
		}
		m.nextID++
		entry.ID = m.nextID
		copied := *entry
		copied.Feeds = slices.Clone(entry.Feeds)
		m.byKey[entry.GUIDHash] = &copied
		return nil
	}

	stored, ok := m.byKey[entry.GUIDHash]
	if !ok {
		return errors.New("entry not found")
	}
	for _, feedID := range entry.Feeds {
		stored.AddFeed(feedID)
	}
	return nil
}

func (m *MockEntryRepository) GetEntryCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey), nil
}

func (m *MockEntryRepository) get(key string) *database.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byKey[key]
}

type statusPair struct {
	entryID        int64
	subscriptionID int64
}

// MockStatusRepository counts every save per pair so duplicate fan-out is visible
type MockStatusRepository struct {
	mu    sync.Mutex
	saves map[statusPair]int
}

var _ database.StatusRepository = (*MockStatusRepository)(nil)

func NewMockStatusRepository() *MockStatusRepository {
	return &MockStatusRepository{saves: make(map[statusPair]int)}
}

func (m *MockStatusRepository) SaveStatuses(ctx context.Context, statuses []*database.EntryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range statuses {
		m.saves[statusPair{s.EntryID, s.SubscriptionID}]++
	}
	return nil
}

func (m *MockStatusRepository) CountStatuses(ctx context.Context, subscriptionID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for pair := range m.saves {
		if pair.subscriptionID == subscriptionID {
			count++
		}
	}
	return count, nil
}

func (m *MockStatusRepository) snapshot() map[statusPair]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make(map[statusPair]int, len(m.saves))
	for k, v := range m.saves {
		copied[k] = v
	}
	return copied
}

type MockSubscriptionRepository struct {
	byFeed map[int64][]*database.Subscription
}

var _ database.SubscriptionRepository = (*MockSubscriptionRepository)(nil)

func (m *MockSubscriptionRepository) FindSubscriptionsByFeed(ctx context.Context, feedID int64) ([]*database.Subscription, error) {
	return m.byFeed[feedID], nil
}

func (m *MockSubscriptionRepository) Subscribe(ctx context.Context, userName string, feedID int64) (*database.Subscription, error) {
	return nil, errors.New("not implemented")
}

type MockRenewer struct {
	mu    sync.Mutex
	feeds []int64
}

var _ Renewer = (*MockRenewer)(nil)

func (m *MockRenewer) ScheduleIfDue(feed *database.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feeds = append(m.feeds, feed.ID)
}

func (m *MockRenewer) scheduled() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.feeds)
}

type MockReturner struct {
	mu       sync.Mutex
	returned []*database.Feed
}

func (m *MockReturner) GiveBack(feed *database.Feed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returned = append(m.returned, feed)
}

func (m *MockReturner) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.returned)
}

type MockEntryUpdater struct {
	fn func(ctx context.Context, feed *database.Feed, entries []database.Entry) (Stats, error)
}

func (m *MockEntryUpdater) UpdateEntries(ctx context.Context, feed *database.Feed, entries []database.Entry) (Stats, error) {
	return m.fn(ctx, feed, entries)
}
