package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Feed describes where the session spreadsheet export lives and how often
// it is read.
type Feed struct {
	URL             string
	FetchTimeout    time.Duration
	FallbackDelay   time.Duration
	RefreshInterval time.Duration
}

// Kafka names the refresh event topic.
type Kafka struct {
	Brokers       []string
	RefreshTopic  string
	ConsumerGroup string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	Feed
	Kafka
	BindAddr         string
	DefaultPage      int
	MaxPage          int
	ArchiveEnabled   bool
	KafkaEnabled     bool
	RefreshRateLimit int
}

// Worker holds configuration for the feed -> Elasticsearch archiver.
type Worker struct {
	Common
	Feed
	Kafka
	DedupeCapacity  int
	DedupeTTL       time.Duration
	PublishAttempts int
}

// Retention configures the archive cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadFeed builds feed settings from environment variables.
func LoadFeed() (*Feed, error) {
	f := &Feed{
		URL:             strings.TrimSpace(os.Getenv("SESSIONS_FEED_URL")),
		FetchTimeout:    getDuration("FEED_FETCH_TIMEOUT", "30s"),
		FallbackDelay:   getDuration("FEED_FALLBACK_DELAY", "800ms"),
		RefreshInterval: getDuration("FEED_REFRESH_INTERVAL", "5m"),
	}

	if f.URL != "" {
		u, err := url.Parse(f.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("SESSIONS_FEED_URL must be an absolute http(s) URL")
		}
	}
	if f.FetchTimeout < 0 {
		return nil, fmt.Errorf("FEED_FETCH_TIMEOUT cannot be negative")
	}
	if f.FallbackDelay < 0 {
		return nil, fmt.Errorf("FEED_FALLBACK_DELAY cannot be negative")
	}
	if f.RefreshInterval <= 0 {
		return nil, fmt.Errorf("FEED_REFRESH_INTERVAL must be positive")
	}

	return f, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	feed, err := LoadFeed()
	if err != nil {
		return nil, err
	}

	c := &API{
		Common:           loadCommon(),
		Feed:             *feed,
		Kafka:            loadKafka("sessions-api"),
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage:      getInt("API_PAGE_SIZE", 20),
		MaxPage:          getInt("API_MAX_PAGE_SIZE", 100),
		ArchiveEnabled:   getBool("API_ARCHIVE_ENABLED", true),
		KafkaEnabled:     getBool("API_KAFKA_ENABLED", true),
		RefreshRateLimit: getInt("API_REFRESH_RATE_LIMIT", 10),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.RefreshRateLimit <= 0 {
		return nil, fmt.Errorf("API_REFRESH_RATE_LIMIT must be positive")
	}
	if c.KafkaEnabled && len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	feed, err := LoadFeed()
	if err != nil {
		return nil, err
	}

	c := &Worker{
		Common:          loadCommon(),
		Feed:            *feed,
		Kafka:           loadKafka("sessions-worker"),
		DedupeCapacity:  getInt("WORKER_DEDUPE_CAPACITY", 64),
		DedupeTTL:       getDuration("WORKER_DEDUPE_TTL", "24h"),
		PublishAttempts: getInt("WORKER_PUBLISH_ATTEMPTS", 5),
	}

	if len(c.Brokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.PublishAttempts <= 0 {
		return nil, fmt.Errorf("WORKER_PUBLISH_ATTEMPTS must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_CRON", "6h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "24h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "sessions"),
	}
}

func loadKafka(group string) Kafka {
	return Kafka{
		Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		RefreshTopic:  getEnv("KAFKA_REFRESH_TOPIC", "sessions_refresh"),
		ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", group),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
