package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

func NewHandler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	scheduler Scheduler, queue QueueSizer, gatherer prometheus.Gatherer, version string) *Handler {
	return &Handler{
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
		scheduler: scheduler,
		queue:     queue,
		gatherer:  gatherer,
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"states":    h.scheduler.StateCounts(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(ctx); err == nil {
		health["feeds"] = feedCount
	} else {
		slog.Error("Database error", "operation", "get_feed_count", "error", err)
	}

	if entryCount, err := h.entryRepo.GetEntryCount(ctx); err == nil {
		health["entries"] = entryCount
	} else {
		slog.Error("Database error", "operation", "get_entry_count", "error", err)
	}

	if h.queue != nil {
		health["update_queue"] = h.queue.QueueSize()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := time.Now()
	stats := feedStats{
		Total: len(feeds),
		Failing: lo.CountBy(feeds, func(f *database.Feed) bool {
			return f.ErrorCount > 0
		}),
		Disabled: lo.CountBy(feeds, func(f *database.Feed) bool {
			return f.DisabledUntil != nil && f.DisabledUntil.After(now)
		}),
		WebSub: lo.CountBy(feeds, func(f *database.Feed) bool {
			return f.PushHub != "" && f.PushTopic != ""
		}),
		Never: lo.CountBy(feeds, func(f *database.Feed) bool {
			return f.LastUpdateSuccess == nil
		}),
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds":  stats,
		"states": h.scheduler.StateCounts(),
	})
}

// VerifyPushSubscription answers the hub's intent verification by echoing the challenge
func (h *Handler) VerifyPushSubscription(c *gin.Context) {
	mode := c.Query("hub.mode")
	topic := c.Query("hub.topic")

	if mode == "denied" {
		slog.Warn("WebSub subscription denied", "topic", topic, "reason", c.Query("hub.reason"))
		c.Status(http.StatusOK)
		return
	}

	challenge := c.Query("hub.challenge")
	if challenge == "" {
		c.Status(http.StatusBadRequest)
		return
	}

	slog.Debug("WebSub subscription verified", "mode", mode, "topic", topic, "lease", c.Query("hub.lease_seconds"))
	c.String(http.StatusOK, challenge)
}

// ReceivePushNotification schedules an out-of-band refresh for the notified feed.
// The pushed payload is ignored; the regular fetch path picks up the new content.
func (h *Handler) ReceivePushNotification(c *gin.Context) {
	feed, ok := h.lookupFeed(c, c.Query("feed"))
	if !ok {
		return
	}

	h.scheduler.Submit(feed)

	slog.Debug("WebSub notification received", "feed_id", feed.ID, "url", feed.URL)
	c.Status(http.StatusAccepted)
}

func (h *Handler) APIRefreshFeed(c *gin.Context) {
	feed, ok := h.lookupFeed(c, c.Param("id"))
	if !ok {
		return
	}

	h.scheduler.Submit(feed)

	slog.Info("Feed refresh requested", "feed_id", feed.ID, "url", feed.URL)
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Feed queued for refresh",
		"feed": gin.H{
			"id":  feed.ID,
			"url": feed.URL,
		},
	})
}

func (h *Handler) lookupFeed(c *gin.Context, rawID string) (*database.Feed, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed ID"})
		return nil, false
	}

	feed, err := h.feedRepo.GetFeed(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}

	if feed == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return nil, false
	}

	return feed, true
}
