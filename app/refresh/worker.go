package refresh

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/feed-refresh/app/database"
	"github.com/lysyi3m/feed-refresh/app/fetcher"
	"github.com/lysyi3m/feed-refresh/app/metrics"
)

const (
	idleDelay        = time.Second
	errorsBeforeHold = 3
	maxHoldHours     = 24
	maxMessageLength = 1024
)

// Worker runs the fetch loops: take a due feed, fetch and parse it, then hand
// the result to the update pipeline.
type Worker struct {
	taker     feedTaker
	updater   feedUpdater
	fetcher   FeedFetcher
	parser    FeedParser
	metrics   *metrics.Metrics
	threads   int
	idleDelay time.Duration
	now       func() time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewWorker(taker feedTaker, updater feedUpdater, f FeedFetcher, p FeedParser, m *metrics.Metrics, threads int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		taker:     taker,
		updater:   updater,
		fetcher:   f,
		parser:    p,
		metrics:   m,
		threads:   max(threads, 1),
		idleDelay: idleDelay,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (w *Worker) Start() {
	for i := 0; i < w.threads; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}

	slog.Info("Refresh workers started", "threads", w.threads)
}

func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()

	for {
		if w.ctx.Err() != nil {
			return
		}

		feed := w.taker.Take(w.ctx)
		if feed == nil {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.idleDelay):
			}
			continue
		}

		slog.Debug("Refreshing feed", "worker_id", id, "feed", feed.URL)
		w.refresh(w.ctx, feed)
	}
}

func (w *Worker) refresh(ctx context.Context, f *database.Feed) {
	now := w.now()

	var entries []database.Entry
	if f.DisabledUntil != nil && f.DisabledUntil.After(now) {
		slog.Debug("Feed disabled, skipping fetch", "feed", f.URL, "disabled_until", f.DisabledUntil)
	} else {
		entries = w.fetch(ctx, f, now)
	}

	if err := w.updater.UpdateFeed(ctx, f, entries); err != nil {
		slog.Warn("Failed to submit feed update", "feed", f.URL, "error", err)
	}
}

func (w *Worker) fetch(ctx context.Context, f *database.Feed, now time.Time) []database.Entry {
	result, err := w.fetcher.Fetch(ctx, f.URL, f.LastModified, f.ETag)

	switch {
	case errors.Is(err, fetcher.ErrNotModified):
		slog.Debug("Feed not modified", "feed", f.URL)
		w.markHealthy(f)
		return nil

	case err != nil:
		w.markFailure(f, err, now)
		return nil
	}

	w.metrics.FetchDuration.Observe(result.Duration.Seconds())

	metadata, entries, err := w.parser.Run(result.Content)
	if err != nil {
		w.markFailure(f, err, now)
		return nil
	}

	f.ETag = result.ETag
	f.LastModified = result.LastModified
	f.Link = cmp.Or(metadata.Link, f.Link)
	f.PushHub = metadata.Hub
	f.PushTopic = metadata.Topic
	f.LastUpdateSuccess = &now
	w.markHealthy(f)

	return entries
}

func (w *Worker) markHealthy(f *database.Feed) {
	f.ErrorCount = 0
	f.Message = ""
	f.DisabledUntil = nil
}

// markFailure counts the error and, from the third consecutive one, holds the
// feed back for one more hour per error, up to a day.
func (w *Worker) markFailure(f *database.Feed, err error, now time.Time) {
	f.ErrorCount++
	f.Message = truncateMessage(err.Error())

	if f.ErrorCount >= errorsBeforeHold {
		hold := time.Duration(min(f.ErrorCount-errorsBeforeHold+1, maxHoldHours)) * time.Hour
		until := now.Add(hold)
		f.DisabledUntil = &until
	}

	slog.Warn("Feed refresh failed", "feed", f.URL, "error_count", f.ErrorCount, "disabled_until", f.DisabledUntil, "error", err)
}

func truncateMessage(message string) string {
	runes := []rune(message)
	if len(runes) <= maxMessageLength {
		return message
	}
	return string(runes[:maxMessageLength])
}
