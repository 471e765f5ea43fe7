package httpapi

import (
	"context"
	"time"

	"emotiond/internal/stream"
	"emotiond/pkg/types"
)

// HandleState reports the shared inference handle's lifecycle.
type HandleState interface {
	Loaded() bool
	LastError() error
}

// ModelLister lists the classifier models on disk.
type ModelLister interface {
	List() []types.Model
}

// Realtime adapts a stream.Registry to Service.
type Realtime struct {
	Registry *stream.Registry
	Handle   HandleState
	Models   ModelLister
}

func (rt *Realtime) ListModels() []types.Model {
	if rt.Models == nil {
		return nil
	}
	return rt.Models.List()
}

func (rt *Realtime) Ready() bool { return rt.Handle != nil && rt.Handle.Loaded() }

func (rt *Realtime) Status() types.StatusResponse {
	sessions := rt.Registry.Sessions()
	resp := types.StatusResponse{
		Sessions:          sessions,
		ActiveConnections: len(sessions),
		MaxConnections:    rt.Registry.MaxConnections(),
		UptimeSeconds:     int64(rt.Registry.Uptime() / time.Second),
		ServerTimeUnix:    time.Now().Unix(),
	}
	if resp.Sessions == nil {
		resp.Sessions = []types.SessionStatus{}
	}
	if rt.Handle != nil {
		resp.ModelLoaded = rt.Handle.Loaded()
		if err := rt.Handle.LastError(); err != nil {
			resp.LastError = err.Error()
		}
	}
	return resp
}

func (rt *Realtime) Connect(ctx context.Context, token string) (Session, error) {
	s, err := rt.Registry.Connect(ctx, token)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (rt *Realtime) Disconnect(id string) { rt.Registry.Disconnect(id) }
