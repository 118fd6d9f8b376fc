package quality

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eisenzopf/webrtc-client/internal/metrics"
	"github.com/eisenzopf/webrtc-client/internal/watch"
)

const DefaultInterval = time.Second

// ErrStatsUnavailable is returned by a StatsSource that has nothing to report
// yet, e.g. before the first RTCP report arrives.
var ErrStatsUnavailable = errors.New("quality: stats unavailable")

// StatsSource is the media engine's statistics pull operation.
type StatsSource interface {
	Stats(ctx context.Context) (Snapshot, error)
}

type StatsSourceFunc func(ctx context.Context) (Snapshot, error)

func (f StatsSourceFunc) Stats(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

type Options struct {
	Interval time.Duration
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	// Value, when set, is published to instead of a private value. It lets a
	// long-lived publisher outlive the per-call monitors that feed it.
	Value *watch.Value[Quality]
}

// Monitor samples a StatsSource on a fixed cadence and publishes the derived
// Quality. A failed sample leaves the previous reading in place.
type Monitor struct {
	source   StatsSource
	interval time.Duration
	value    *watch.Value[Quality]
	log      zerolog.Logger
	metrics  *metrics.Metrics

	// mu orders a sample's publish against Stop.
	mu      sync.Mutex
	stopped bool
}

func NewMonitor(source StatsSource, opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	value := opts.Value
	if value == nil {
		value = watch.New(Default())
	}
	return &Monitor{
		source:   source,
		interval: interval,
		value:    value,
		log:      opts.Logger.With().Str("component", "quality").Logger(),
		metrics:  opts.Metrics,
	}
}

func (m *Monitor) Current() Quality {
	return m.value.Load()
}

func (m *Monitor) Subscribe() *watch.Subscription[Quality] {
	return m.value.Subscribe()
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// Stop ends publishing. Once it returns, no sample is stored, including one
// whose Stats call is still in flight.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}

func (m *Monitor) sample(ctx context.Context) bool {
	snap, err := m.source.Stats(ctx)
	if err != nil {
		m.metrics.Inc(metrics.QualitySampleFailures)
		if !errors.Is(err, ErrStatsUnavailable) && ctx.Err() == nil {
			m.log.Debug().Err(err).Msg("stats sample failed")
		}
		return false
	}

	q := FromSnapshot(snap)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || ctx.Err() != nil {
		return false
	}
	m.value.Store(q)
	m.metrics.Inc(metrics.QualitySamples)
	return true
}
