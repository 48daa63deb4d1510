package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Refresh engine configuration
	BackgroundThreads     int
	DatabaseUpdateThreads int
	HeavyLoad             bool
	PubSubHubbub          bool
	RefreshInterval       time.Duration
	LockStripes           int
	LockTimeout           time.Duration
	SeedFile              string

	// HTTP configuration
	Port         string
	PublicURL    string
	APIAccessKey string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
