// Package perf keeps a rolling window of per-frame processing durations and
// turns it into periodic metrics and resolution suggestions.
package perf

import (
	"math"
	"time"

	"emotiond/pkg/types"
)

// Defaults used when MonitorConfig fields are zero.
const (
	DefaultWindow          = 30
	DefaultReportEvery     = 30
	DefaultMaxAverage      = 500 * time.Millisecond
	DefaultMinFPS          = 3.0
	DefaultMinFramesForFPS = 60
	DefaultScale           = 0.7
	DefaultMinWidth        = 320
)

// Suggestion reasons.
const (
	ReasonHighLatency = "High latency detected. Consider reducing resolution for better realtime performance."
	ReasonLowFPS      = "Performance optimization suggestion"
)

// MonitorConfig tunes a Monitor. Zero values select the defaults.
type MonitorConfig struct {
	Window          int
	ReportEvery     int
	MaxAverage      time.Duration
	MinFPS          float64
	MinFramesForFPS int
	Scale           float64
	MinWidth        int
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.ReportEvery <= 0 {
		c.ReportEvery = DefaultReportEvery
	}
	if c.MaxAverage <= 0 {
		c.MaxAverage = DefaultMaxAverage
	}
	if c.MinFPS <= 0 {
		c.MinFPS = DefaultMinFPS
	}
	if c.MinFramesForFPS <= 0 {
		c.MinFramesForFPS = DefaultMinFramesForFPS
	}
	if c.Scale <= 0 || c.Scale >= 1 {
		c.Scale = DefaultScale
	}
	if c.MinWidth <= 0 {
		c.MinWidth = DefaultMinWidth
	}
	return c
}

// Sample describes one finished processing cycle.
type Sample struct {
	Duration      time.Duration
	TrackingFaces int
	FaceDetected  bool
	At            time.Time
	// Resolution is the processing resolution the cycle ran with.
	Resolution [2]int
}

// Suggestion proposes a smaller processing resolution. It is advisory;
// nothing applies it automatically.
type Suggestion struct {
	Message    string
	Resolution [2]int
}

// Report is what Observe hands back. Both fields are nil on frames that are
// not a reporting boundary.
type Report struct {
	Metrics    *types.PerformanceMetrics
	Suggestion *Suggestion
}

// Monitor is owned by one connection and is not safe for concurrent use.
type Monitor struct {
	cfg           MonitorConfig
	window        []time.Duration
	next          int
	sum           time.Duration
	processed     int
	fps           float64
	lastDetection time.Time
	tracking      int
}

// NewMonitor returns a Monitor with cfg's zero fields defaulted.
func NewMonitor(cfg MonitorConfig) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{cfg: cfg, window: make([]time.Duration, 0, cfg.Window)}
}

// Observe records one cycle and returns a report on every ReportEvery-th
// processed frame.
func (m *Monitor) Observe(s Sample) Report {
	m.push(s.Duration)
	m.processed++
	m.tracking = s.TrackingFaces
	if s.FaceDetected {
		m.lastDetection = s.At
	}
	if avg := m.Average(); avg > 0 {
		m.fps = 1 / avg.Seconds()
	} else {
		m.fps = 0
	}

	if m.processed%m.cfg.ReportEvery != 0 {
		return Report{}
	}
	metrics := m.Metrics()
	return Report{Metrics: &metrics, Suggestion: m.suggest(s.Resolution)}
}

func (m *Monitor) push(d time.Duration) {
	if len(m.window) < m.cfg.Window {
		m.window = append(m.window, d)
		m.sum += d
		return
	}
	m.sum += d - m.window[m.next]
	m.window[m.next] = d
	m.next = (m.next + 1) % m.cfg.Window
}

func (m *Monitor) suggest(res [2]int) *Suggestion {
	var msg string
	switch {
	case m.Average() > m.cfg.MaxAverage:
		msg = ReasonHighLatency
	case m.fps < m.cfg.MinFPS && m.processed >= m.cfg.MinFramesForFPS:
		msg = ReasonLowFPS
	default:
		return nil
	}
	w, h := res[0], res[1]
	if w <= m.cfg.MinWidth {
		return nil
	}
	nw := int(math.Round(float64(w) * m.cfg.Scale))
	nh := int(math.Round(float64(h) * m.cfg.Scale))
	if nw < m.cfg.MinWidth {
		nw = m.cfg.MinWidth
		nh = h * nw / w
	}
	return &Suggestion{Message: msg, Resolution: [2]int{nw, nh}}
}

// Average is the mean duration over the current window.
func (m *Monitor) Average() time.Duration {
	if len(m.window) == 0 {
		return 0
	}
	return m.sum / time.Duration(len(m.window))
}

// FPS is the throughput derived from the window average.
func (m *Monitor) FPS() float64 { return m.fps }

// Processed is the number of cycles observed so far.
func (m *Monitor) Processed() int { return m.processed }

// Metrics snapshots the current counters.
func (m *Monitor) Metrics() types.PerformanceMetrics {
	var last float64
	if !m.lastDetection.IsZero() {
		last = float64(m.lastDetection.UnixNano()) / 1e9
	}
	return types.PerformanceMetrics{
		ProcessedFrames:       m.processed,
		CurrentFPS:            m.fps,
		AverageProcessingTime: m.Average().Seconds(),
		LastDetectionTime:     last,
		TrackingFaces:         m.tracking,
	}
}
