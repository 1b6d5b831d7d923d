package state

import (
	"slices"
	"time"

	"walletflow/internal/core"
	"walletflow/internal/log"
	"walletflow/internal/metrics"

	"github.com/google/uuid"
)

const (
	DefaultHydrateTimeout = 10 * time.Second
	DefaultWriteTimeout   = 5 * time.Second
)

type options struct {
	logger         *log.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	newID          func() string
	categories     []core.Category
	hydrateTimeout time.Duration
	writeTimeout   time.Duration
}

func defaultOptions() options {
	return options{
		logger:         log.Discard(),
		now:            time.Now,
		newID:          uuid.NewString,
		categories:     core.DefaultCategories(),
		hydrateTimeout: DefaultHydrateTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}
}

// Option configures a Store.
type Option func(*options)

func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records dispatches, writes and hydration into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the time source used to date new transactions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(o *options) {
		if newID != nil {
			o.newID = newID
		}
	}
}

// WithCategories replaces the seeded category list.
func WithCategories(categories []core.Category) Option {
	return func(o *options) { o.categories = slices.Clone(categories) }
}

func WithHydrateTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.hydrateTimeout = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}
