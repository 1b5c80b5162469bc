package recovery

import (
	"log/slog"
	"time"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/apperror"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/event"
	"github.com/acailic/archi-comm-sub010/pkg/recovery/observability"
)

// Defaults used by New.
const (
	DefaultCooldown    = 5 * time.Second
	DefaultMaxAttempts = 5
)

// config holds orchestrator configuration.
type config struct {
	logger      *slog.Logger
	clock       func() time.Time
	metrics     observability.MetricsRecorder
	spans       observability.SpanManager
	bus         event.BusConfig
	critical    func(*apperror.Record) bool
	preferred   []string
	cooldown    time.Duration
	maxAttempts int
	historySize int
}

func defaultConfig() config {
	bus := event.DefaultBusConfig
	bus.DropWhenFull = true
	return config{
		logger:      slog.Default(),
		clock:       time.Now,
		metrics:     observability.NoopMetrics{},
		spans:       observability.NoopSpanManager{},
		bus:         bus,
		critical:    apperror.IsCritical,
		cooldown:    DefaultCooldown,
		maxAttempts: DefaultMaxAttempts,
		historySize: DefaultHistorySize,
	}
}

// Option configures an Orchestrator.
type Option func(*config)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for cooldown checks and durations.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
//
// Example:
//
//	recovery.New(recovery.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the tracer. Default: observability.NoopSpanManager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(c *config) {
		if sm != nil {
			c.spans = sm
		}
	}
}

// WithBusConfig configures the notification bus.
// Default: event.DefaultBusConfig with DropWhenFull set.
func WithBusConfig(bc event.BusConfig) Option {
	return func(c *config) {
		c.bus = bc
	}
}

// WithCriticality replaces the criticality gate. Default: apperror.IsCritical.
func WithCriticality(gate func(*apperror.Record) bool) Option {
	return func(c *config) {
		if gate != nil {
			c.critical = gate
		}
	}
}

// WithPreferredOrder lists strategy names to try before priority ordering.
// Preferred names outrank every priority, including the lowest one; include
// the first strategy's name at the head of the list to keep it first.
func WithPreferredOrder(names ...string) Option {
	return func(c *config) {
		c.preferred = append([]string(nil), names...)
	}
}

// WithCooldown sets the minimum interval between attempts.
// Default: 5s. Zero disables the cooldown; negative values are ignored.
func WithCooldown(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.cooldown = d
		}
	}
}

// WithMaxAttempts caps how many strategies one run may execute. Default: 5.
func WithMaxAttempts(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithHistorySize bounds the attempt history. Default: 20.
func WithHistorySize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.historySize = n
		}
	}
}
