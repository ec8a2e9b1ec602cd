package message

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultResponseTimeout is how long a requester waits for the next
// message on a conversation before giving up, absent an explicit
// WithResponseTimeout.
const defaultResponseTimeout = 30 * time.Second

// Config collects the options a Connection is built with. Use
// NewConnection's variadic Option args rather than constructing Config
// directly.
type Config struct {
	ResponseTimeout time.Duration
	SignSalt        string
	SourceID        string
	Logger          *slog.Logger
	Registerer      prometheus.Registerer
}

func defaultConfig() Config {
	return Config{
		ResponseTimeout: defaultResponseTimeout,
		SourceID:        uuid.NewString(),
		Logger:          slog.Default(),
	}
}

// Option configures a Connection at construction time.
type Option func(*Config)

// WithResponseTimeout overrides how long a requester waits for the next
// message on a conversation before the wait fails with a TimeoutError.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) { c.ResponseTimeout = d }
}

// WithSignSalt enables message signing with the given shared salt. An
// empty salt (the default) leaves signing disabled: outgoing messages
// carry no "z" field and incoming signatures, if present, are not
// checked.
func WithSignSalt(salt string) Option {
	return func(c *Config) { c.SignSalt = salt }
}

// WithSourceID overrides the random source id this Connection identifies
// itself as on outgoing messages. Absent this option a fresh UUID is
// generated per Connection.
func WithSourceID(id string) Option {
	return func(c *Config) { c.SourceID = id }
}

// WithLogger overrides the slog.Logger a Connection logs dropped
// messages, verification failures, and failed sends to.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithMetrics registers this Connection's counters and gauges against
// reg. Passing a nil Registerer (the default) disables metrics entirely
// rather than registering against prometheus's global default registry,
// so creating a Connection never has a surprising side effect on
// process-wide metrics.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Config) { c.Registerer = reg }
}
