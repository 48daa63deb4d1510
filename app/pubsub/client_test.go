package pubsub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockFeedRepository struct {
	mu    sync.Mutex
	pings map[int64]time.Time
}

var _ database.FeedRepository = (*MockFeedRepository)(nil)

func NewMockFeedRepository() *MockFeedRepository {
	return &MockFeedRepository{pings: make(map[int64]time.Time)}
}

func (m *MockFeedRepository) FindNextUpdatable(ctx context.Context, count int, now time.Time) ([]*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) SaveFeeds(ctx context.Context, feeds []*database.Feed) error {
	return nil
}

func (m *MockFeedRepository) GetFeed(ctx context.Context, id int64) (*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) UpsertFeed(ctx context.Context, url string) (*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) UpdatePushLastPing(ctx context.Context, id int64, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings[id] = t
	return nil
}

func (m *MockFeedRepository) ListFeeds(ctx context.Context) ([]*database.Feed, error) {
	return nil, nil
}

func (m *MockFeedRepository) GetFeedCount(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *MockFeedRepository) ping(id int64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.pings[id]
	return t, ok
}

func newTestClient(repo database.FeedRepository) *Client {
	c := NewClient(repo, "https://reader.example.com/", "test-agent")
	c.initialInterval = time.Millisecond
	return c
}

func TestSubscribeSendsForm(t *testing.T) {
	forms := make(chan map[string]string, 1)
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		forms <- map[string]string{
			"mode":     r.PostForm.Get("hub.mode"),
			"topic":    r.PostForm.Get("hub.topic"),
			"callback": r.PostForm.Get("hub.callback"),
			"verify":   r.PostForm.Get("hub.verify"),
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer hub.Close()

	repo := NewMockFeedRepository()
	feed := &database.Feed{ID: 7, URL: "https://example.com/feed", PushHub: hub.URL, PushTopic: "https://example.com/feed"}

	require.NoError(t, newTestClient(repo).Subscribe(context.Background(), feed))

	form := <-forms
	assert.Equal(t, "subscribe", form["mode"])
	assert.Equal(t, "https://example.com/feed", form["topic"])
	assert.Equal(t, "https://reader.example.com/push/callback?feed=7", form["callback"])
	assert.Equal(t, "async", form["verify"])

	_, pinged := repo.ping(7)
	assert.True(t, pinged)
}

func TestSubscribeRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hub.Close()

	repo := NewMockFeedRepository()
	feed := &database.Feed{ID: 1, PushHub: hub.URL, PushTopic: "https://example.com/feed"}

	require.NoError(t, newTestClient(repo).Subscribe(context.Background(), feed))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSubscribeGivesUpAfterThreeAttempts(t *testing.T) {
	var attempts atomic.Int32
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer hub.Close()

	repo := NewMockFeedRepository()
	feed := &database.Feed{ID: 1, PushHub: hub.URL, PushTopic: "https://example.com/feed"}

	assert.Error(t, newTestClient(repo).Subscribe(context.Background(), feed))
	assert.Equal(t, int32(3), attempts.Load())

	_, pinged := repo.ping(1)
	assert.False(t, pinged)
}

func TestSubscribeDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	hub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad topic", http.StatusBadRequest)
	}))
	defer hub.Close()

	feed := &database.Feed{ID: 1, PushHub: hub.URL, PushTopic: "https://example.com/feed"}

	err := newTestClient(NewMockFeedRepository()).Subscribe(context.Background(), feed)
	assert.ErrorContains(t, err, "bad topic")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestSubscribeRequiresHub(t *testing.T) {
	err := newTestClient(NewMockFeedRepository()).Subscribe(context.Background(), &database.Feed{ID: 1})
	assert.Error(t, err)
}
