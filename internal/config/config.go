package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	TransportStomp = "stomp"
	TransportKafka = "kafka"
	TransportSpool = "spool"

	DefaultListenAddr      = ":8090"
	DefaultStreamURL       = "ws://localhost:8084/ws-notifications/websocket"
	DefaultStompTopic      = "/topic/notifications"
	DefaultKafkaTopic      = "notification-email-events"
	DefaultSpoolTopic      = "spool"
	DefaultSpoolDir        = ".notifyconsole/spool"
	DefaultSnapshotDSN     = "file://.notifyconsole/ui_notifications_v1.json"
	DefaultSnapshotKey     = "ui_notifications_v1"
	DefaultReconnectDelay  = 5 * time.Second
	DefaultMaxStored       = 400
	DefaultHighlightWindow = 2800 * time.Millisecond
	DefaultRateLimitRPS    = 20
	DefaultRateLimitBurst  = 40
	DefaultMaxBodyBytes    = 1 << 20

	envPrefix = "NOTIFYCONSOLE_"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr" validate:"required"`
	Stream     Stream `yaml:"stream"`
	Store      Store  `yaml:"store"`
	HTTP       HTTP   `yaml:"http"`
}

type Stream struct {
	Transport        string        `yaml:"transport" validate:"oneof=stomp kafka spool"`
	URL              string        `yaml:"url" validate:"required_if=Transport stomp"`
	Host             string        `yaml:"host"`
	Login            string        `yaml:"login"`
	Passcode         string        `yaml:"passcode"`
	HeartBeat        time.Duration `yaml:"heartbeat" validate:"gte=0"`
	Topic            string        `yaml:"topic"`
	KafkaBrokers     []string      `yaml:"kafka_brokers" validate:"required_if=Transport kafka"`
	KafkaGroupPrefix string        `yaml:"kafka_group_prefix"`
	SpoolDir         string        `yaml:"spool_dir" validate:"required_if=Transport spool"`
	ReconnectDelay   time.Duration `yaml:"reconnect_delay" validate:"gt=0"`
	ReconnectJitter  float64       `yaml:"reconnect_jitter" validate:"gte=0,lte=1"`
	// HistoryLimit caps the raw history the connector keeps. Zero is unbounded.
	HistoryLimit int `yaml:"history_limit" validate:"gte=0"`
}

type Store struct {
	MaxStored       int           `yaml:"max_stored" validate:"gte=1"`
	HighlightWindow time.Duration `yaml:"highlight_window" validate:"gt=0"`
	SnapshotDSN     string        `yaml:"snapshot_dsn"`
	SnapshotKey     string        `yaml:"snapshot_key"`
}

type HTTP struct {
	RateLimitRPS   float64  `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int      `yaml:"rate_limit_burst" validate:"gte=0"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" validate:"gt=0"`
}

func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
		Stream: Stream{
			Transport:      TransportStomp,
			URL:            DefaultStreamURL,
			SpoolDir:       DefaultSpoolDir,
			ReconnectDelay: DefaultReconnectDelay,
		},
		Store: Store{
			MaxStored:       DefaultMaxStored,
			HighlightWindow: DefaultHighlightWindow,
			SnapshotDSN:     DefaultSnapshotDSN,
			SnapshotKey:     DefaultSnapshotKey,
		},
		HTTP: HTTP{
			RateLimitRPS:   DefaultRateLimitRPS,
			RateLimitBurst: DefaultRateLimitBurst,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
	}
}

var validate = validator.New()

// Load builds the configuration from defaults, then the optional YAML file at
// path (NOTIFYCONSOLE_CONFIG when path is empty), then NOTIFYCONSOLE_*
// environment variables. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(envPrefix + "CONFIG"))
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ListenAddr = envOrDefault(envPrefix+"ADDR", cfg.ListenAddr)

	s := &cfg.Stream
	s.Transport = envOrDefault(envPrefix+"TRANSPORT", s.Transport)
	s.URL = envOrDefault(envPrefix+"STREAM_URL", s.URL)
	s.Host = envOrDefault(envPrefix+"STOMP_HOST", s.Host)
	s.Login = envOrDefault(envPrefix+"STOMP_LOGIN", s.Login)
	s.Passcode = envOrDefault(envPrefix+"STOMP_PASSCODE", s.Passcode)
	s.HeartBeat = durationEnv(envPrefix+"STOMP_HEARTBEAT", s.HeartBeat)
	s.Topic = envOrDefault(envPrefix+"TOPIC", s.Topic)
	s.KafkaBrokers = csvEnv(envPrefix+"KAFKA_BROKERS", s.KafkaBrokers)
	s.KafkaGroupPrefix = envOrDefault(envPrefix+"KAFKA_GROUP_PREFIX", s.KafkaGroupPrefix)
	s.SpoolDir = envOrDefault(envPrefix+"SPOOL_DIR", s.SpoolDir)
	s.ReconnectDelay = durationEnv(envPrefix+"RECONNECT_DELAY", s.ReconnectDelay)
	s.ReconnectJitter = floatEnv(envPrefix+"RECONNECT_JITTER", s.ReconnectJitter)
	s.HistoryLimit = intEnv(envPrefix+"HISTORY_LIMIT", s.HistoryLimit)

	st := &cfg.Store
	st.MaxStored = intEnv(envPrefix+"MAX_STORED", st.MaxStored)
	st.HighlightWindow = durationEnv(envPrefix+"HIGHLIGHT_WINDOW", st.HighlightWindow)
	st.SnapshotDSN = envOrDefault(envPrefix+"SNAPSHOT_DSN", st.SnapshotDSN)
	st.SnapshotKey = envOrDefault(envPrefix+"SNAPSHOT_KEY", st.SnapshotKey)

	h := &cfg.HTTP
	h.RateLimitRPS = floatEnv(envPrefix+"RATE_LIMIT_RPS", h.RateLimitRPS)
	h.RateLimitBurst = intEnv(envPrefix+"RATE_LIMIT_BURST", h.RateLimitBurst)
	h.AllowedOrigins = csvEnv(envPrefix+"ALLOWED_ORIGINS", h.AllowedOrigins)
	h.MaxBodyBytes = int64Env(envPrefix+"MAX_BODY_BYTES", h.MaxBodyBytes)
}

func (c *Config) normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.Stream.Transport = strings.ToLower(strings.TrimSpace(c.Stream.Transport))
	c.Stream.URL = strings.TrimSpace(c.Stream.URL)
	c.Stream.Topic = strings.TrimSpace(c.Stream.Topic)
	c.Stream.SpoolDir = strings.TrimSpace(c.Stream.SpoolDir)
	c.Stream.KafkaBrokers = compact(c.Stream.KafkaBrokers)
	c.HTTP.AllowedOrigins = compact(c.HTTP.AllowedOrigins)
	c.Store.SnapshotDSN = strings.TrimSpace(c.Store.SnapshotDSN)
	c.Store.SnapshotKey = strings.TrimSpace(c.Store.SnapshotKey)
	if c.Stream.Topic == "" {
		c.Stream.Topic = DefaultTopic(c.Stream.Transport)
	}
}

// DefaultTopic is the topic a transport subscribes to when none is configured.
func DefaultTopic(transport string) string {
	switch transport {
	case TransportKafka:
		return DefaultKafkaTopic
	case TransportSpool:
		return DefaultSpoolTopic
	default:
		return DefaultStompTopic
	}
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// SnapshotTarget is the snapshot DSN with the configured snapshot key applied
// to backends that store several named snapshots. An explicit key query
// parameter in the DSN wins.
func (c Config) SnapshotTarget() string {
	dsn := c.Store.SnapshotDSN
	key := c.Store.SnapshotKey
	if dsn == "" || key == "" || key == DefaultSnapshotKey {
		return dsn
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql", "redis", "rediss", "dynamodb":
	default:
		return dsn
	}
	query := parsed.Query()
	if query.Get("key") != "" {
		return dsn
	}
	query.Set("key", key)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intEnv(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, value, fallback)
		return fallback
	}
	return parsed
}

func int64Env(name string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, value, fallback)
		return fallback
	}
	return parsed
}

func floatEnv(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %v", name, value, fallback)
		return fallback
	}
	return parsed
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, value, fallback)
		return fallback
	}
	return parsed
}

func csvEnv(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return compact(strings.Split(value, ","))
}

func compact(values []string) []string {
	var out []string
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
