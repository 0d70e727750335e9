// Package connectivity tracks whether the remote service is reachable and
// notifies listeners on every online/offline transition.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultProbeInterval is used when Start is given a non-positive interval
const DefaultProbeInterval = 15 * time.Second

//go:generate moq -out prober_mock.go . Prober

// Prober checks reachability of the remote service
type Prober interface {
	Ping(ctx context.Context) error
}

// Listener is called once per transition
type Listener func()

// Monitor holds the current online flag.
// Repeated observations of the same state do not notify listeners.
type Monitor struct {
	prober    Prober
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	onOnline  []Listener
	onOffline []Listener
	interval  time.Duration
	mu        sync.Mutex
	online    bool
}

// NewMonitor creates a monitor in the given initial state.
// prober may be nil when state is driven only by Set.
func NewMonitor(prober Prober, initial bool, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:   prober,
		online:   initial,
		interval: interval,
		logger:   logger,
	}
}

// IsOnline returns the last observed state
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnOnline registers a listener for offline -> online transitions
func (m *Monitor) OnOnline(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, l)
}

// OnOffline registers a listener for online -> offline transitions
func (m *Monitor) OnOffline(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, l)
}

// Set applies a state observation and reports whether it was a transition
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	var listeners []Listener
	if online {
		listeners = append(listeners, m.onOnline...)
	} else {
		listeners = append(listeners, m.onOffline...)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", "online", online)

	// Слушатели вызываются вне мьютекса: они могут читать IsOnline
	for _, l := range listeners {
		l()
	}
	return true
}

// Probe runs one health check and applies its result
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}
	err := m.prober.Ping(ctx)
	if err != nil {
		m.logger.Debug("Health probe failed", "error", err)
	}
	m.Set(err == nil)
	return err == nil
}

// Start probes immediately and then every interval until Stop or ctx is done.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil || m.prober == nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Probe(ctx)
			}
		}
	}()
}

// Stop ends periodic probing and waits for the probe loop to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
