package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/lysyi3m/feed-refresh/app/database"
	"gopkg.in/yaml.v3"
)

// Submitter queues a feed for an immediate refresh
type Submitter interface {
	Submit(feed *database.Feed)
}

// Seeder registers the feeds and subscribers declared in a YAML seed file
type Seeder struct {
	path     string
	feedRepo database.FeedRepository
	subRepo  database.SubscriptionRepository
}

func NewSeeder(path string, feedRepo database.FeedRepository, subRepo database.SubscriptionRepository) *Seeder {
	return &Seeder{
		path:     path,
		feedRepo: feedRepo,
		subRepo:  subRepo,
	}
}

// Load reads and validates the seed file. A missing file yields an empty config.
func (s *Seeder) Load() (*SeedConfig, error) {
	if s.path == "" {
		return &SeedConfig{}, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Seed file not found", "path", s.path)
		return &SeedConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var config SeedConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSeed(&config); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", s.path, err)
	}

	return &config, nil
}

// Run upserts every seeded feed, subscribes its users and submits it for refresh.
// It returns the number of feeds seeded.
func (s *Seeder) Run(ctx context.Context, submitter Submitter) (int, error) {
	config, err := s.Load()
	if err != nil {
		return 0, err
	}

	for _, seed := range config.Feeds {
		feed, err := s.feedRepo.UpsertFeed(ctx, seed.URL)
		if err != nil {
			return 0, fmt.Errorf("failed to seed feed %s: %w", seed.URL, err)
		}

		for _, user := range seed.Subscribers {
			if _, err := s.subRepo.Subscribe(ctx, user, feed.ID); err != nil {
				return 0, fmt.Errorf("failed to seed subscriber %s: %w", user, err)
			}
		}

		submitter.Submit(feed)
		slog.Debug("Feed seeded", "feed", feed.URL, "subscribers", len(seed.Subscribers))
	}

	return len(config.Feeds), nil
}

func validateSeed(config *SeedConfig) error {
	seen := make(map[string]bool, len(config.Feeds))

	for i, seed := range config.Feeds {
		if seed.URL == "" {
			return fmt.Errorf("feed URL is required at index %d", i)
		}

		u, err := url.Parse(seed.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid feed URL at index %d: %s", i, seed.URL)
		}

		if seen[seed.URL] {
			return fmt.Errorf("duplicate feed URL at index %d: %s", i, seed.URL)
		}
		seen[seed.URL] = true

		for j, user := range seed.Subscribers {
			if user == "" {
				return fmt.Errorf("empty subscriber at feed %d index %d", i, j)
			}
		}
	}

	return nil
}
