// Package metrics aggregates engine counters and timings and answers the
// health predicate used by the HTTP API.
package metrics

import (
	"sync"
	"time"

	"podforge/internal/queue"
)

// Options configures a Monitor.
type Options struct {
	// Window is the number of recent completions used for averages and the
	// failure rate.
	Window int
	// FailureRateThreshold is the failure rate at or above which the engine
	// is unhealthy.
	FailureRateThreshold float64
	// MinSamples is the number of recent completions required before the
	// failure rate affects health.
	MinSamples int
	// HeartbeatTimeout is how stale the engine heartbeat may be.
	HeartbeatTimeout time.Duration
	Now              func() time.Time
}

type sample struct {
	duration time.Duration
	success  bool
}

// Snapshot is a point-in-time view of engine metrics.
type Snapshot struct {
	TotalProcessed int64              `json:"totalProcessed"`
	Succeeded      int64              `json:"succeeded"`
	Failed         int64              `json:"failed"`
	Cancelled      int64              `json:"cancelled"`
	Retried        int64              `json:"retried"`
	QueueDepth     int                `json:"queueDepth"`
	RunningCount   int                `json:"runningCount"`
	AvgDurationMs  float64            `json:"avgDurationMs"`
	StageAvgMs     map[string]float64 `json:"stageAvgMs,omitempty"`
	FailureRate    float64            `json:"failureRate"`
	ByStatus       map[string]int     `json:"byStatus"`
	StartedAt      time.Time          `json:"startedAt"`
	UptimeSeconds  float64            `json:"uptimeSeconds"`
	LastHeartbeat  time.Time          `json:"lastHeartbeat"`
	Healthy        bool               `json:"healthy"`
}

// Monitor is safe for concurrent use. It never touches job state.
type Monitor struct {
	opts Options

	mu         sync.Mutex
	startedAt  time.Time
	heartbeat  time.Time
	succeeded  int64
	failed     int64
	cancelled  int64
	retried    int64
	recent     []sample
	next       int
	stageTotal map[string]time.Duration
	stageCount map[string]int
	queueDepth int
	running    int
	byStatus   map[string]int
}

// NewMonitor constructs a monitor; the heartbeat starts fresh.
func NewMonitor(opts Options) *Monitor {
	if opts.Window <= 0 {
		opts.Window = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 30 * time.Second
	}
	now := opts.Now()
	return &Monitor{
		opts:       opts,
		startedAt:  now,
		heartbeat:  now,
		recent:     make([]sample, 0, opts.Window),
		stageTotal: make(map[string]time.Duration),
		stageCount: make(map[string]int),
		byStatus:   make(map[string]int),
	}
}

// MarkStarted restarts the uptime clock and the heartbeat. The engine calls
// it from Start so uptime excludes time spent constructed but idle.
func (m *Monitor) MarkStarted() {
	m.mu.Lock()
	now := m.opts.Now()
	m.startedAt = now
	m.heartbeat = now
	m.mu.Unlock()
}

// Heartbeat records that the engine loop is responsive.
func (m *Monitor) Heartbeat() {
	m.mu.Lock()
	m.heartbeat = m.opts.Now()
	m.mu.Unlock()
}

// RecordCompletion records a job reaching completed or failed.
func (m *Monitor) RecordCompletion(job *queue.Job) {
	if job == nil {
		return
	}
	success := job.Status == queue.StatusCompleted
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.succeeded++
	} else {
		m.failed++
	}
	s := sample{duration: job.Duration(), success: success}
	if len(m.recent) < m.opts.Window {
		m.recent = append(m.recent, s)
	} else {
		m.recent[m.next] = s
		m.next = (m.next + 1) % m.opts.Window
	}
	if job.Result != nil {
		for _, st := range job.Result.Stages {
			m.stageTotal[st.Name] += st.CompletedAt.Sub(st.StartedAt)
			m.stageCount[st.Name]++
		}
	}
}

// RecordCancelled counts a cancelled job.
func (m *Monitor) RecordCancelled() {
	m.mu.Lock()
	m.cancelled++
	m.mu.Unlock()
}

// RecordRetry counts a requeued attempt.
func (m *Monitor) RecordRetry() {
	m.mu.Lock()
	m.retried++
	m.mu.Unlock()
}

// UpdateGauges replaces the queue gauges. byStatus is copied.
func (m *Monitor) UpdateGauges(queueDepth, running int, byStatus map[queue.Status]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = queueDepth
	m.running = running
	m.byStatus = make(map[string]int, len(byStatus))
	for status, n := range byStatus {
		m.byStatus[string(status)] = n
	}
}

// Snapshot returns current metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.opts.Now()
	snap := Snapshot{
		TotalProcessed: m.succeeded + m.failed,
		Succeeded:      m.succeeded,
		Failed:         m.failed,
		Cancelled:      m.cancelled,
		Retried:        m.retried,
		QueueDepth:     m.queueDepth,
		RunningCount:   m.running,
		AvgDurationMs:  m.avgDurationLocked(),
		FailureRate:    m.failureRateLocked(),
		ByStatus:       make(map[string]int, len(m.byStatus)),
		StartedAt:      m.startedAt,
		UptimeSeconds:  now.Sub(m.startedAt).Seconds(),
		LastHeartbeat:  m.heartbeat,
	}
	for k, v := range m.byStatus {
		snap.ByStatus[k] = v
	}
	if len(m.stageCount) > 0 {
		snap.StageAvgMs = make(map[string]float64, len(m.stageCount))
		for name, count := range m.stageCount {
			snap.StageAvgMs[name] = float64(m.stageTotal[name].Milliseconds()) / float64(count)
		}
	}
	snap.Healthy = m.healthyLocked(now)
	return snap
}

// IsHealthy reports whether the engine loop is responsive and the recent
// failure rate is below the threshold.
func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthyLocked(m.opts.Now())
}

// Uptime returns time since the monitor started.
func (m *Monitor) Uptime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Now().Sub(m.startedAt)
}

func (m *Monitor) healthyLocked(now time.Time) bool {
	if now.Sub(m.heartbeat) > m.opts.HeartbeatTimeout {
		return false
	}
	if len(m.recent) < m.opts.MinSamples || m.opts.FailureRateThreshold <= 0 {
		return true
	}
	return m.failureRateLocked() < m.opts.FailureRateThreshold
}

func (m *Monitor) failureRateLocked() float64 {
	if len(m.recent) == 0 {
		return 0
	}
	failed := 0
	for _, s := range m.recent {
		if !s.success {
			failed++
		}
	}
	return float64(failed) / float64(len(m.recent))
}

func (m *Monitor) avgDurationLocked() float64 {
	if len(m.recent) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range m.recent {
		total += s.duration
	}
	return float64(total.Milliseconds()) / float64(len(m.recent))
}
