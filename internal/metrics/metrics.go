// Package metrics provides lightweight, lock-minimal performance counters
// for a running store instance.
//
// Counters use sync/atomic so hot paths (Set, Get, event dispatch) incur no
// mutex contention. Latency statistics use a single mutex per dimension;
// they are updated at most once per operation.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all runtime counters for a running store instance.
// The zero value is valid and ready to use; prefer New() for clarity.
type Metrics struct {
	// Mutation counters
	Sets    atomic.Int64
	Deletes atomic.Int64
	Cleans  atomic.Int64

	// Eviction / version counters
	Evictions       atomic.Int64
	VersionWarnings atomic.Int64

	// Event / queue counters
	EventsDispatched atomic.Int64
	QueuePushes      atomic.Int64
	QueuePops        atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	setMu   sync.Mutex
	setStat latencyStats

	dispatchMu   sync.Mutex
	dispatchStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordSetLatency records the duration of one Set call.
func (m *Metrics) RecordSetLatency(d time.Duration) {
	m.setMu.Lock()
	m.setStat.record(float64(d.Microseconds()) / 1000.0)
	m.setMu.Unlock()
}

// RecordDispatchLatency records the duration of one event dispatch fan-out.
func (m *Metrics) RecordDispatchLatency(d time.Duration) {
	m.dispatchMu.Lock()
	m.dispatchStat.record(float64(d.Microseconds()) / 1000.0)
	m.dispatchMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.setMu.Lock()
	set := m.setStat.snapshot()
	m.setMu.Unlock()

	m.dispatchMu.Lock()
	dispatch := m.dispatchStat.snapshot()
	m.dispatchMu.Unlock()

	return Snapshot{
		Mutations: MutationSnapshot{
			Sets:    m.Sets.Load(),
			Deletes: m.Deletes.Load(),
			Cleans:  m.Cleans.Load(),
		},
		Storage: StorageSnapshot{
			Evictions:       m.Evictions.Load(),
			VersionWarnings: m.VersionWarnings.Load(),
		},
		Events: EventSnapshot{
			Dispatched:  m.EventsDispatched.Load(),
			QueuePushes: m.QueuePushes.Load(),
			QueuePops:   m.QueuePops.Load(),
		},
		Latency: LatencyGroup{
			SetMs:      set,
			DispatchMs: dispatch,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Mutations  MutationSnapshot `json:"mutations"`
	Storage    StorageSnapshot  `json:"storage"`
	Events     EventSnapshot    `json:"events"`
	Latency    LatencyGroup     `json:"latency"`
	UptimeSecs float64          `json:"uptimeSecs"`
}

// MutationSnapshot holds mutation-level counters.
type MutationSnapshot struct {
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Cleans  int64 `json:"cleans"`
}

// StorageSnapshot holds eviction/version counters.
type StorageSnapshot struct {
	Evictions       int64 `json:"evictions"`
	VersionWarnings int64 `json:"versionWarnings"`
}

// EventSnapshot holds event/queue counters.
type EventSnapshot struct {
	Dispatched  int64 `json:"dispatched"`
	QueuePushes int64 `json:"queuePushes"`
	QueuePops   int64 `json:"queuePops"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	SetMs      LatencySnapshot `json:"setMs"`
	DispatchMs LatencySnapshot `json:"dispatchMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
