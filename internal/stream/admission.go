package stream

import (
	"encoding/base64"
	"strings"
	"time"

	"emotiond/internal/perf"
	"emotiond/pkg/types"
)

// Frame payload checks applied before a frame is admitted.
const (
	minPayloadChars = 100
	sniffChars      = 20
)

// ValidateFrame performs the cheap structural checks on a frame. It does
// not decode the image.
func ValidateFrame(f *types.FrameMessage) error {
	if f == nil {
		return ErrMalformedFrame("missing frame")
	}
	if f.FrameID.IsZero() {
		return ErrMalformedFrame("missing frame_id")
	}
	if strings.TrimSpace(f.Data) == "" {
		return ErrMalformedFrame("missing data")
	}
	mt, body, hasHeader := SplitDataURI(f.Data)
	if hasHeader && !strings.HasPrefix(mt, "image/") && mt != "application/octet-stream" {
		return ErrMalformedFrame("unsupported media type " + mt)
	}
	body = strings.TrimSpace(body)
	if len(body) < minPayloadChars {
		return ErrMalformedFrame("payload too short")
	}
	if _, err := base64.StdEncoding.DecodeString(body[:sniffChars]); err != nil {
		return ErrMalformedFrame("payload is not base64")
	}
	return nil
}

// SubmitFrame admits a frame with drop-latest-wins semantics. The frame
// replaces whatever is pending; if no cycle is running one is started on a
// new goroutine. SubmitFrame never blocks on processing.
func (s *Session) SubmitFrame(f *types.FrameMessage) error {
	m := s.reg.metrics
	m.IncFramesReceived()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.state != Processing {
		s.mu.Unlock()
		m.IncFrameErrors("not_started")
		s.emitError(400, notStartedError{}.Error(), frameIDOf(f))
		return notStartedError{}
	}
	if err := ValidateFrame(f); err != nil {
		s.mu.Unlock()
		m.IncFrameErrors("malformed")
		s.log.Warn().Err(err).Str("frame_id", frameIDOf(f).String()).Msg("frame rejected")
		s.emitError(400, err.Error(), frameIDOf(f))
		return err
	}
	if s.pending != nil {
		s.dropped++
		m.IncFramesDropped()
		s.reg.publish(Event{Name: EventFrameDropped, SessionID: s.id, Fields: map[string]any{"frame_id": s.pending.FrameID.String()}})
	}
	s.pending = f
	if s.inflight {
		s.mu.Unlock()
		return nil
	}
	s.inflight = true
	first := s.pending
	s.pending = nil
	s.ensureProcessorLocked()
	s.mu.Unlock()

	go s.drain(first)
	return nil
}

// drain runs cycles until the pending slot is empty, then clears in-flight.
// Only one drain runs per session at a time. A frame left pending when the
// session stops is dropped.
func (s *Session) drain(f *types.FrameMessage) {
	for f != nil {
		s.runCycle(f)

		s.mu.Lock()
		if s.closed || s.state != Processing || s.pending == nil {
			s.inflight = false
			s.pending = nil
			s.mu.Unlock()
			return
		}
		f = s.pending
		s.pending = nil
		s.mu.Unlock()
	}
}

func (s *Session) runCycle(f *types.FrameMessage) {
	s.mu.Lock()
	proc, mon, cfg := s.proc, s.mon, s.cfg
	dirty := s.cfgDirty
	s.cfgDirty = false
	s.mu.Unlock()
	// The processor is only touched from the drain goroutine, so config
	// changes are handed over here rather than from Control.
	if dirty {
		proc.Reconfigure(cfg)
	}

	start := time.Now()
	res, err := s.safeProcess(proc, f)
	elapsed := time.Since(start)

	if err != nil {
		code := 500
		switch {
		case IsDecodeFailure(err):
			code = 422
			s.reg.metrics.IncFrameErrors("decode")
		default:
			s.reg.metrics.IncFrameErrors("internal")
		}
		s.log.Warn().Err(err).Str("frame_id", f.FrameID.String()).Msg("frame processing failed")
		if !s.Closed() {
			s.emitError(code, err.Error(), f.FrameID)
		}
		return
	}

	now := time.Now()
	report := mon.Observe(perf.Sample{
		Duration:      elapsed,
		TrackingFaces: proc.TrackedFaces(),
		FaceDetected:  res.FaceDetected,
		At:            now,
		Resolution:    cfg.ProcessingResolution,
	})
	res.Timestamp = unixSeconds(now)
	res.ProcessingTime = elapsed.Seconds()
	res.FPS = mon.FPS()
	if f.Timestamp > 0 {
		res.Latency = res.Timestamp - f.Timestamp
	} else {
		res.Latency = res.ProcessingTime
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.processed = mon.Processed()
		s.fps = res.FPS
	}
	s.mu.Unlock()
	if closed {
		s.log.Debug().Str("frame_id", f.FrameID.String()).Msg("discarding result for closed session")
		return
	}

	s.reg.metrics.IncFramesProcessed()
	s.reg.metrics.SetProcessingFPS(res.FPS)
	if len(res.Faces) > 0 {
		s.log.Info().Str("frame_id", f.FrameID.String()).Int("faces", len(res.Faces)).Dur("took", elapsed).Msg("faces detected")
	}
	s.reg.publish(Event{Name: EventCycleDone, SessionID: s.id, Fields: map[string]any{
		"frame_id": f.FrameID.String(), "faces": len(res.Faces), "ms": elapsed.Milliseconds(),
	}})

	s.emit(types.EventDetectionResult, res)
	s.reg.shareWithRooms(s, res)

	if report.Suggestion != nil {
		sg := report.Suggestion
		s.reg.publish(Event{Name: EventSuggestion, SessionID: s.id, Fields: map[string]any{
			"width": sg.Resolution[0], "height": sg.Resolution[1],
		}})
		s.emit(types.EventPerformanceSuggestion, types.SuggestionPayload{
			Code:            200,
			Message:         sg.Message,
			SuggestedConfig: types.SuggestedConfig{ProcessingResolution: sg.Resolution},
			Timestamp:       unixSeconds(time.Now()),
		})
	}
	if report.Metrics != nil {
		s.emitStatus("Processing metrics", report.Metrics)
	}
}

func (s *Session) safeProcess(proc Processor, f *types.FrameMessage) (res *types.DetectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("frame_id", f.FrameID.String()).Msg("processor panic")
			res = &types.DetectionResult{FrameID: f.FrameID, Faces: []types.FaceResult{}}
			err = nil
		}
	}()
	return proc.Process(s.context(), f)
}

func frameIDOf(f *types.FrameMessage) types.FrameID {
	if f == nil {
		return types.FrameID{}
	}
	return f.FrameID
}
