package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./feed-refresh.db" description:"SQLite database file"`

	// Refresh engine configuration
	BackgroundThreads     int           `long:"background-threads" env:"BACKGROUND_THREADS" default:"3" description:"Number of fetch workers"`
	DatabaseUpdateThreads int           `long:"database-update-threads" env:"DATABASE_UPDATE_THREADS" default:"1" description:"Number of workers applying fetched entries to storage"`
	HeavyLoad             bool          `long:"heavy-load" env:"HEAVY_LOAD" description:"Keep cached validators longer to reduce load on feed servers"`
	PubSubHubbub          bool          `long:"pubsubhubbub" env:"PUBSUBHUBBUB" description:"Renew WebSub subscriptions for feeds that advertise a hub"`
	RefreshInterval       time.Duration `long:"refresh-interval" env:"REFRESH_INTERVAL" default:"5m" description:"Minimum delay between two polls of the same feed"`
	LockStripes           int           `long:"lock-stripes" env:"LOCK_STRIPES" description:"Number of entry lock stripes (default: 100000 per update thread)"`
	LockTimeout           time.Duration `long:"lock-timeout" env:"LOCK_TIMEOUT" default:"1m" description:"Maximum wait for a single entry lock"`
	SeedFile              string        `long:"seed-file" env:"SEED_FILE" description:"YAML file with feeds and subscribers to register at startup"`

	// HTTP configuration
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	PublicURL    string `long:"public-url" env:"PUBLIC_URL" description:"Public base URL used as WebSub callback (e.g., https://feeds.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"feed-refresh/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:                raw.DBPath,
		BackgroundThreads:     max(raw.BackgroundThreads, 1),
		DatabaseUpdateThreads: max(raw.DatabaseUpdateThreads, 1),
		HeavyLoad:             raw.HeavyLoad,
		PubSubHubbub:          raw.PubSubHubbub,
		RefreshInterval:       raw.RefreshInterval,
		LockStripes:           raw.LockStripes,
		LockTimeout:           raw.LockTimeout,
		SeedFile:              raw.SeedFile,
		Port:                  raw.Port,
		PublicURL:             raw.PublicURL,
		APIAccessKey:          raw.APIAccessKey,
		UserAgent:             raw.UserAgent,
		Timezone:              raw.Timezone,
		Debug:                 raw.Debug,
		Version:               GetVersion(),
	}

	if cfg.LockStripes <= 0 {
		cfg.LockStripes = cfg.DatabaseUpdateThreads * 100000
	}

	if cfg.PubSubHubbub && cfg.PublicURL == "" {
		return nil, fmt.Errorf("public URL is required when WebSub renewal is enabled")
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
