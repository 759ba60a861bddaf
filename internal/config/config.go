package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Strategy selects the toggle executor wired at startup.
type Strategy string

const (
	StrategySync   Strategy = "sync"
	StrategySlice  Strategy = "slice"
	StrategyStream Strategy = "stream"
)

type Database struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN renders the go-sql-driver/mysql data source name.
func (d Database) DSN() string {
	connection := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", d.User, d.Pass, d.Host, d.Port, d.Name)
	val := url.Values{}
	val.Add("parseTime", "1")
	val.Add("loc", "UTC")
	return fmt.Sprintf("%s?%s", connection, val.Encode())
}

type Cache struct {
	Addr    string
	Pass    string
	DB      int
	Timeout time.Duration
}

type HotKey struct {
	TopK     int
	Width    int
	Depth    int
	Decay    float64
	MinCount int
}

type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64
}

type Broker struct {
	Stream            string
	Group             string
	Consumer          string
	DeadLetterStream  string
	BatchSize         int64
	BatchTimeout      time.Duration
	MaxRedeliver      int64
	PublishTimeout    time.Duration
	NackBackoff       Backoff
	AckTimeoutBackoff Backoff
}

type Config struct {
	ServerAddress  string
	ContextTimeout time.Duration
	LogLevel       string
	Strategy       Strategy

	Database Database
	Cache    Cache

	SliceWidth        time.Duration
	FlushOffset       time.Duration
	FlushInitialDelay time.Duration
	FadeInterval      time.Duration
	CompensateCron    string
	ReconcileCron     string

	HotKey          HotKey
	LocalCacheSize  int
	LocalCacheTTL   time.Duration
	BloomFilterSize uint64

	Broker Broker
}

// Parse loads an optional .env file and reads the configuration from the
// environment, falling back to defaults.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	var errs []error
	c := &Config{}
	c.ServerAddress = getenv("SERVER_ADDRESS", ":9090")
	c.ContextTimeout = duration("CONTEXT_TIMEOUT", 30*time.Second, &errs)
	c.LogLevel = getenv("LOG_LEVEL", "info")
	c.Strategy = Strategy(getenv("LIKE_STRATEGY", string(StrategySlice)))

	c.Database = Database{
		Host: getenv("DATABASE_HOST", "127.0.0.1"),
		Port: getenv("DATABASE_PORT", "3306"),
		User: getenv("DATABASE_USER", "root"),
		Pass: os.Getenv("DATABASE_PASS"),
		Name: getenv("DATABASE_NAME", "pretty_like"),
	}
	c.Cache = Cache{
		Addr:    getenv("CACHE_HOST", "127.0.0.1") + ":" + getenv("CACHE_PORT", "6379"),
		Pass:    os.Getenv("CACHE_PASS"),
		DB:      integer("CACHE_DB", 0, &errs),
		Timeout: duration("STORE_TIMEOUT", 500*time.Millisecond, &errs),
	}

	c.SliceWidth = duration("SLICE_WIDTH", 10*time.Second, &errs)
	c.FlushOffset = duration("FLUSH_OFFSET", 2*time.Second, &errs)
	c.FlushInitialDelay = duration("FLUSH_INITIAL_DELAY", 10*time.Second, &errs)
	c.FadeInterval = duration("FADE_INTERVAL", 20*time.Second, &errs)
	c.CompensateCron = getenv("COMPENSATE_CRON", "0 2 * * *")
	c.ReconcileCron = getenv("RECONCILE_CRON", "0 2 * * *")

	c.HotKey = HotKey{
		TopK:     integer("HOTKEY_TOPK", 100, &errs),
		Width:    integer("HOTKEY_WIDTH", 100000, &errs),
		Depth:    integer("HOTKEY_DEPTH", 5, &errs),
		Decay:    float("HOTKEY_DECAY", 0.92, &errs),
		MinCount: integer("HOTKEY_MIN_COUNT", 10, &errs),
	}
	c.LocalCacheSize = integer("LOCAL_CACHE_SIZE", 1000, &errs)
	c.LocalCacheTTL = duration("LOCAL_CACHE_TTL", 5*time.Minute, &errs)
	c.BloomFilterSize = uint64(integer("BLOOM_FILTER_SIZE", 10000000, &errs))

	hostname, _ := os.Hostname()
	c.Broker = Broker{
		Stream:           getenv("BROKER_STREAM", "thumb-topic"),
		Group:            getenv("BROKER_GROUP", "thumb-subscription"),
		Consumer:         getenv("BROKER_CONSUMER", "consumer-"+hostname),
		DeadLetterStream: getenv("BROKER_DLQ_STREAM", "thumb-dlq-topic"),
		BatchSize:        int64(integer("BROKER_BATCH_SIZE", 10, &errs)),
		BatchTimeout:     duration("BROKER_BATCH_TIMEOUT", 10*time.Second, &errs),
		MaxRedeliver:     int64(integer("BROKER_MAX_REDELIVER", 3, &errs)),
		PublishTimeout:   duration("BROKER_PUBLISH_TIMEOUT", time.Second, &errs),
		NackBackoff: Backoff{
			Min:        duration("NACK_BACKOFF_MIN", time.Second, &errs),
			Max:        duration("NACK_BACKOFF_MAX", time.Minute, &errs),
			Multiplier: float("NACK_BACKOFF_MULTIPLIER", 2, &errs),
		},
		AckTimeoutBackoff: Backoff{
			Min:        duration("ACK_TIMEOUT_BACKOFF_MIN", 5*time.Second, &errs),
			Max:        duration("ACK_TIMEOUT_BACKOFF_MAX", 5*time.Minute, &errs),
			Multiplier: float("ACK_TIMEOUT_BACKOFF_MULTIPLIER", 3, &errs),
		},
	}

	errs = append(errs, c.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch c.Strategy {
	case StrategySync, StrategySlice, StrategyStream:
	default:
		errs = append(errs, fmt.Errorf("LIKE_STRATEGY must be one of sync, slice, stream, got %q", c.Strategy))
	}
	if c.SliceWidth < time.Second {
		errs = append(errs, errors.New("SLICE_WIDTH must be at least 1s"))
	}
	if c.FlushOffset >= c.SliceWidth {
		errs = append(errs, errors.New("FLUSH_OFFSET must be shorter than SLICE_WIDTH"))
	}
	// a slice script still in flight when its slice is flushed would be lost
	if c.Cache.Timeout >= c.FlushOffset {
		errs = append(errs, errors.New("STORE_TIMEOUT must be shorter than FLUSH_OFFSET"))
	}
	if c.HotKey.TopK <= 0 || c.HotKey.Width <= 0 || c.HotKey.Depth <= 0 {
		errs = append(errs, errors.New("HOTKEY_TOPK, HOTKEY_WIDTH and HOTKEY_DEPTH must be > 0"))
	}
	if c.HotKey.Decay <= 0 || c.HotKey.Decay >= 1 {
		errs = append(errs, errors.New("HOTKEY_DECAY must be in (0, 1)"))
	}
	if c.LocalCacheSize <= 0 {
		errs = append(errs, errors.New("LOCAL_CACHE_SIZE must be > 0"))
	}
	if c.Broker.BatchSize <= 0 || c.Broker.MaxRedeliver <= 0 {
		errs = append(errs, errors.New("BROKER_BATCH_SIZE and BROKER_MAX_REDELIVER must be > 0"))
	}
	if c.Broker.NackBackoff.Multiplier < 1 || c.Broker.AckTimeoutBackoff.Multiplier < 1 {
		errs = append(errs, errors.New("backoff multipliers must be >= 1"))
	}
	return errs
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func integer(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func float(k string, def float64, errs *[]error) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func duration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

// ParseLevel maps LOG_LEVEL to a logrus level, defaulting to info.
func ParseLevel(lvl string) logrus.Level {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
