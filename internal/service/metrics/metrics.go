// Package metrics counts lifecycle events with Prometheus collectors.
//
// The daemon has no HTTP surface, so the registry is exported through the
// node-exporter textfile collector format when a textfile path is configured.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

const metricPrefix = "stop_the_game_"

// Collector is a lifecycle observer backed by its own Prometheus registry.
type Collector struct {
	ctx      context.Context //nolint:containedctx // Observe has no context parameter.
	registry *prometheus.Registry
	textfile string

	events    *prometheus.CounterVec
	state     *prometheus.GaugeVec
	cycle     prometheus.Gauge
	lastEvent prometheus.Gauge

	mu sync.Mutex
}

// Option configures a Collector.
type Option func(*Collector)

// WithTextfile writes the registry to path after every event.
func WithTextfile(path string) Option {
	return func(c *Collector) {
		c.textfile = path
	}
}

// New creates a collector with every event kind and state pre-registered at zero.
func New(ctx context.Context, opts ...Option) *Collector {
	c := &Collector{
		ctx:      logger.WithName(ctx, "metrics"),
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "events_total",
				Help: "Total lifecycle events by kind",
			},
			[]string{"kind"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "state",
				Help: "Current coordinator state, 1 for the active state",
			},
			[]string{"state"},
		),
		cycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "cycle_id",
			Help: "Identifier of the most recent alarm cycle",
		}),
		lastEvent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "last_event_timestamp_seconds",
			Help: "Unix time of the most recent lifecycle event",
		}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.registry.MustRegister(c.events, c.state, c.cycle, c.lastEvent)

	for _, kind := range domain.EventKinds() {
		c.events.WithLabelValues(kind.String())
	}

	for _, state := range domain.States() {
		c.state.WithLabelValues(state.String()).Set(0)
	}

	c.state.WithLabelValues(domain.StateIdle.String()).Set(1)

	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe implements domain.Observer.
func (c *Collector) Observe(ev domain.LifecycleEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events.WithLabelValues(ev.Kind.String()).Inc()

	for _, state := range domain.States() {
		value := 0.0
		if state == ev.State {
			value = 1
		}

		c.state.WithLabelValues(state.String()).Set(value)
	}

	if ev.CycleID > 0 {
		c.cycle.Set(float64(ev.CycleID))
	}

	if !ev.At.IsZero() {
		c.lastEvent.Set(float64(ev.At.UnixNano()) / 1e9) //nolint:mnd // Nanoseconds per second.
	}

	if c.textfile == "" {
		return
	}

	if err := c.writeTextfile(); err != nil {
		logger.WarnKV(c.ctx, "Failed to write metrics textfile", "path", c.textfile, "error", err)
	}
}

func (c *Collector) writeTextfile() error {
	if dir := filepath.Dir(filepath.Clean(c.textfile)); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:mnd // Owner and group only.
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}

	if err := prometheus.WriteToTextfile(c.textfile, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
