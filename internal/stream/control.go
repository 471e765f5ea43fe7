package stream

import (
	"encoding/json"

	"emotiond/pkg/types"
)

// Control actions.
const (
	ActionStart     = "start"
	ActionStop      = "stop"
	ActionConfigure = "configure"
)

// Control applies a start, stop or configure action and acknowledges it with
// a status event. Unknown actions and invalid configs are reported to the
// client with code 400 and leave the session untouched.
func (s *Session) Control(action string, rawConfig json.RawMessage) error {
	switch action {
	case ActionStart:
		s.setState(Processing)
		s.emitStatus("Processing started", nil)
	case ActionStop:
		s.setState(Idle)
		s.emitStatus("Processing stopped", nil)
	case ActionConfigure:
		if err := s.configure(rawConfig); err != nil {
			s.emitError(400, err.Error(), types.FrameID{})
			return err
		}
		s.emitStatus("Configuration updated", nil)
	default:
		err := unknownActionError{action: action}
		s.emitError(400, err.Error(), types.FrameID{})
		return err
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Info().Str("state", st.String()).Msg("processing state changed")
	}
}

func (s *Session) configure(raw json.RawMessage) error {
	patch, err := ParseConfigPatch(raw)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.cfg.Apply(patch)
	if err != nil {
		return err
	}
	s.cfg = cfg
	if s.proc != nil {
		s.cfgDirty = true
	}
	return nil
}
