package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the cache namespaces and the background janitor that sweeps
// expired entries. It is the only shared mutable state in the query path and
// is safe for concurrent use. The janitor starts on construction and stops
// on Stop(); it never holds a namespace lock for longer than a single entry
// removal.
type Manager struct {
	mu     sync.Mutex
	spaces map[string]sweeper

	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

type sweeper interface {
	sweep(now time.Time) int
	purge() int
}

const defaultSweepInterval = time.Minute

func NewManager(sweepInterval time.Duration, logger *slog.Logger) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		spaces:   make(map[string]sweeper),
		interval: sweepInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
	go m.run()
	return m
}

// Stop terminates the janitor. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		<-m.doneCh
	})
}

// Invalidate purges the named namespaces; with no arguments it purges all.
func (m *Manager) Invalidate(namespaces ...string) {
	m.mu.Lock()
	targets := make([]sweeper, 0, len(m.spaces))
	if len(namespaces) == 0 {
		for _, s := range m.spaces {
			targets = append(targets, s)
		}
	} else {
		for _, name := range namespaces {
			if s, ok := m.spaces[name]; ok {
				targets = append(targets, s)
			}
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, s := range targets {
		removed += s.purge()
	}
	if removed > 0 {
		m.logger.Info("cache_invalidated", "namespaces", namespaces, "entries", removed)
	}
}

func (m *Manager) register(name string, s sweeper) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.spaces[name]; exists {
		return fmt.Errorf("cache namespace %q already registered", name)
	}
	m.spaces[name] = s
	return nil
}

func (m *Manager) run() {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case now := <-ticker.C:
			m.sweepAll(now)
		}
	}
}

func (m *Manager) sweepAll(now time.Time) {
	m.mu.Lock()
	targets := make([]sweeper, 0, len(m.spaces))
	for _, s := range m.spaces {
		targets = append(targets, s)
	}
	m.mu.Unlock()

	removed := 0
	for _, s := range targets {
		removed += s.sweep(now)
	}
	if removed > 0 {
		m.logger.Debug("cache_sweep", "expired_entries", removed)
	}
}
