package feed

// Feed processing types

type Metadata struct {
	Title string
	Link  string
	Hub   string // WebSub hub advertised by the feed
	Topic string // Self URL the hub publishes under
}

// Seed file types

type SeedConfig struct {
	Feeds []SeedFeed `yaml:"feeds"`
}

type SeedFeed struct {
	URL         string   `yaml:"url"`
	Subscribers []string `yaml:"subscribers"`
}
