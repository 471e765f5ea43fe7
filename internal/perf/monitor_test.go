package perf

import (
	"testing"
	"time"
)

func observeN(m *Monitor, n int, d time.Duration, res [2]int) []Report {
	out := make([]Report, 0, n)
	now := time.Unix(1700000000, 0)
	for i := 0; i < n; i++ {
		out = append(out, m.Observe(Sample{Duration: d, At: now, Resolution: res, FaceDetected: true, TrackingFaces: 1}))
		now = now.Add(d)
	}
	return out
}

func TestObserve_SlowRunSuggestsAfter30(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	reps := observeN(m, 35, 600*time.Millisecond, [2]int{480, 360})
	for i, r := range reps {
		if i == 29 {
			continue
		}
		if r.Metrics != nil || r.Suggestion != nil {
			t.Fatalf("unexpected report at frame %d", i+1)
		}
	}
	r := reps[29]
	if r.Metrics == nil || r.Metrics.ProcessedFrames != 30 {
		t.Fatalf("expected metrics at frame 30, got %+v", r.Metrics)
	}
	if r.Suggestion == nil {
		t.Fatalf("expected suggestion at frame 30")
	}
	if r.Suggestion.Resolution != [2]int{336, 252} {
		t.Fatalf("expected 0.7 scale, got %v", r.Suggestion.Resolution)
	}
	if r.Suggestion.Message != ReasonHighLatency {
		t.Fatalf("unexpected reason %q", r.Suggestion.Message)
	}
}

func TestObserve_SuggestionClampedToMinWidth(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	reps := observeN(m, 30, 600*time.Millisecond, [2]int{400, 300})
	s := reps[29].Suggestion
	if s == nil {
		t.Fatalf("expected suggestion")
	}
	if s.Resolution != [2]int{320, 240} {
		t.Fatalf("expected clamp to 320x240, got %v", s.Resolution)
	}
}

func TestObserve_NoSuggestionAtFloor(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	reps := observeN(m, 30, time.Second, [2]int{320, 240})
	if reps[29].Metrics == nil {
		t.Fatalf("metrics must still be reported")
	}
	if reps[29].Suggestion != nil {
		t.Fatalf("no suggestion expected at min width, got %+v", reps[29].Suggestion)
	}
}

func TestObserve_LowFPSNeedsEnoughFrames(t *testing.T) {
	// 400ms average stays under the latency ceiling but gives 2.5 fps.
	m := NewMonitor(MonitorConfig{})
	reps := observeN(m, 60, 400*time.Millisecond, [2]int{640, 480})
	if reps[29].Suggestion != nil {
		t.Fatalf("fps rule must wait for 60 frames")
	}
	s := reps[59].Suggestion
	if s == nil || s.Message != ReasonLowFPS {
		t.Fatalf("expected low fps suggestion at frame 60, got %+v", s)
	}
	if s.Resolution != [2]int{448, 336} {
		t.Fatalf("got %v", s.Resolution)
	}
}

func TestObserve_FastRunNoSuggestion(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	reps := observeN(m, 90, 50*time.Millisecond, [2]int{640, 480})
	for _, r := range reps {
		if r.Suggestion != nil {
			t.Fatalf("fast run must not suggest")
		}
	}
	if fps := m.FPS(); fps < 19.9 || fps > 20.1 {
		t.Fatalf("expected ~20 fps, got %v", fps)
	}
}

func TestWindow_Rolls(t *testing.T) {
	m := NewMonitor(MonitorConfig{Window: 3})
	for _, d := range []time.Duration{100, 100, 100, 400, 400, 400} {
		m.Observe(Sample{Duration: d * time.Millisecond})
	}
	if got := m.Average(); got != 400*time.Millisecond {
		t.Fatalf("expected window to hold only recent samples, avg=%v", got)
	}
	if m.Processed() != 6 {
		t.Fatalf("processed=%d", m.Processed())
	}
}

func TestMetrics_LastDetectionOnlyWhenDetected(t *testing.T) {
	m := NewMonitor(MonitorConfig{})
	m.Observe(Sample{Duration: time.Millisecond, At: time.Unix(100, 0)})
	if got := m.Metrics().LastDetectionTime; got != 0 {
		t.Fatalf("expected zero, got %v", got)
	}
	m.Observe(Sample{Duration: time.Millisecond, At: time.Unix(200, 0), FaceDetected: true, TrackingFaces: 2})
	got := m.Metrics()
	if got.LastDetectionTime != 200 || got.TrackingFaces != 2 {
		t.Fatalf("unexpected metrics %+v", got)
	}
}
