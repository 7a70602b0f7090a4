package vm

import (
	"sync"
	"sync/atomic"
	"time"
)

// ---------------------------------------------------------------------------
// LimboSweeper: periodic cleanup of parked dispatch tables
// ---------------------------------------------------------------------------

// SweepStats holds statistics from a single sweep.
type SweepStats struct {
	Destroyed     int
	Remaining     int
	CachedTables  int
	SweepDuration time.Duration
	Timestamp     time.Time
}

// LimboSweeper periodically destroys dispatch tables that have waited in
// limbo for a full sweep interval, so that an idle runtime (a REPL between
// inputs) does not keep dead rule indexes around indefinitely.
type LimboSweeper struct {
	cache    *DispatchCache
	interval time.Duration
	enabled  atomic.Bool
	stop     chan struct{}
	stopped  chan struct{}
	mu       sync.Mutex // protects start/stop lifecycle

	sweepCount atomic.Uint64
	lastStats  atomic.Pointer[SweepStats]
}

// DefaultSweepInterval is the default sweep interval.
const DefaultSweepInterval = 30 * time.Second

// NewLimboSweeper creates a sweeper for cache. A non-positive interval
// selects DefaultSweepInterval.
func NewLimboSweeper(cache *DispatchCache, interval time.Duration) *LimboSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s := &LimboSweeper{
		cache:    cache,
		interval: interval,
	}
	s.enabled.Store(true)
	return s
}

// Start begins the periodic sweep goroutine. It is safe to call Start
// multiple times; only one sweep loop will run.
func (s *LimboSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return // already running
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	// Capture channels locally so the goroutine does not read s.stop/s.stopped
	// after Stop() has nilled them out.
	stopCh := s.stop
	stoppedCh := s.stopped
	go s.loop(stopCh, stoppedCh)
}

// Stop halts the sweep goroutine and waits for it to finish. It is safe to
// call Stop multiple times or on a sweeper that was never started.
func (s *LimboSweeper) Stop() {
	s.mu.Lock()
	stopCh := s.stop
	stoppedCh := s.stopped
	s.stop = nil
	s.stopped = nil
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-stoppedCh
	}
}

// SetEnabled enables or disables sweeping. When disabled, the goroutine
// still runs but skips sweeps.
func (s *LimboSweeper) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// IsEnabled returns whether sweeping is currently enabled.
func (s *LimboSweeper) IsEnabled() bool {
	return s.enabled.Load()
}

// Interval returns the sweep interval.
func (s *LimboSweeper) Interval() time.Duration {
	return s.interval
}

// SweepCount returns the total number of sweeps performed.
func (s *LimboSweeper) SweepCount() uint64 {
	return s.sweepCount.Load()
}

// LastStats returns statistics from the most recent sweep, or nil if no
// sweep has been performed yet.
func (s *LimboSweeper) LastStats() *SweepStats {
	return s.lastStats.Load()
}

// SweepNow performs an immediate sweep regardless of the timer.
func (s *LimboSweeper) SweepNow() *SweepStats {
	return s.sweep()
}

func (s *LimboSweeper) loop(stopCh <-chan struct{}, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.enabled.Load() {
				s.sweep()
			}
		}
	}
}

func (s *LimboSweeper) sweep() *SweepStats {
	start := time.Now()
	stats := &SweepStats{Timestamp: start}

	stats.Destroyed = s.cache.sweepLimbo()
	cs := s.cache.Stats()
	stats.Remaining = cs.Limbo
	stats.CachedTables = cs.Tables
	stats.SweepDuration = time.Since(start)

	s.sweepCount.Add(1)
	s.lastStats.Store(stats)
	return stats
}
