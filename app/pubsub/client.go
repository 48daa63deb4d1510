package pubsub

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lysyi3m/feed-refresh/app/database"
)

const (
	maxAttempts    = 3
	requestTimeout = 20 * time.Second
	CallbackPath   = "/push/callback"
)

// Client sends WebSub subscription requests to feed hubs
type Client struct {
	httpClient      *http.Client
	feedRepo        database.FeedRepository
	publicURL       string
	userAgent       string
	initialInterval time.Duration
	now             func() time.Time
}

func NewClient(feedRepo database.FeedRepository, publicURL, userAgent string) *Client {
	return &Client{
		httpClient:      &http.Client{Timeout: requestTimeout},
		feedRepo:        feedRepo,
		publicURL:       strings.TrimRight(publicURL, "/"),
		userAgent:       userAgent,
		initialInterval: 500 * time.Millisecond,
		now:             time.Now,
	}
}

// CallbackURL is the address the hub notifies for feed
func (c *Client) CallbackURL(feedID int64) string {
	return c.publicURL + CallbackPath + "?feed=" + strconv.FormatInt(feedID, 10)
}

// Subscribe asks the feed's hub to push updates to our callback. Network
// failures and 5xx responses are retried; on a 2xx the ping time is recorded.
func (c *Client) Subscribe(ctx context.Context, feed *database.Feed) error {
	if feed.PushHub == "" || feed.PushTopic == "" {
		return fmt.Errorf("feed %d has no hub or topic", feed.ID)
	}

	form := url.Values{
		"hub.mode":     {"subscribe"},
		"hub.topic":    {feed.PushTopic},
		"hub.callback": {c.CallbackURL(feed.ID)},
		"hub.verify":   {"async"},
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)

	operation := func() error {
		return c.post(ctx, feed.PushHub, form)
	}
	notify := func(err error, wait time.Duration) {
		slog.Debug("Retrying hub subscription", "feed", feed.URL, "hub", feed.PushHub, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return fmt.Errorf("failed to subscribe to hub %s: %w", feed.PushHub, err)
	}

	if err := c.feedRepo.UpdatePushLastPing(ctx, feed.ID, c.now()); err != nil {
		return err
	}

	slog.Info("Subscribed to hub", "feed", feed.URL, "hub", feed.PushHub, "topic", feed.PushTopic)
	return nil
}

func (c *Client) post(ctx context.Context, hub string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form.Encode()))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("hub responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode >= 500 {
		return err
	}
	return backoff.Permanent(err)
}
