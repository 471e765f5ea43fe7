package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"emotiond/internal/auth"
	"emotiond/pkg/types"
)

// Websocket keepalive timings.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func newUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin,
	}
}

// checkOrigin accepts every origin unless CORS is enabled with an explicit
// allow list.
func checkOrigin(r *http.Request) bool {
	if !corsEnabled || len(corsAllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range corsAllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// realtimeHandler admits the client through svc, upgrades the connection and
// runs the read loop until the peer goes away.
func realtimeHandler(svc Service, up *websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		rid := middleware.GetReqID(r.Context())
		token := auth.TokenFromRequest(r.Header.Get("Authorization"), r.URL.Query().Get("token"))

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		sess, err := svc.Connect(ctx, token)
		cancel()
		if err != nil {
			status := connectStatus(err)
			if status == http.StatusServiceUnavailable {
				IncrementBackpressure("capacity")
			}
			if lvl >= LevelInfo && zlog != nil {
				zlog.Info().Str("path", r.URL.Path).Str("request_id", rid).Int("status", status).Err(err).Msg("realtime connect rejected")
			}
			writeJSONError(w, status, err.Error())
			return
		}

		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			svc.Disconnect(sess.ID())
			if lvl >= LevelError && zlog != nil {
				zlog.Error().Str("request_id", rid).Err(err).Msg("websocket upgrade failed")
			}
			return
		}

		wc := newWSConn(conn)
		sess.Attach(wc)
		go func(base <-chan struct{}) {
			select {
			case <-base:
				wc.close()
			case <-wc.done:
			}
		}(serverBaseCtx.Done())
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			zlog.Info().Str("session_id", sess.ID()).Str("request_id", rid).Msg("realtime start")
		}
		defer func() {
			svc.Disconnect(sess.ID())
			wc.close()
			if lvl >= LevelInfo && zlog != nil {
				zlog.Info().Str("session_id", sess.ID()).Dur("dur", time.Since(start)).Msg("realtime end")
			}
		}()
		wc.serve(sess, lvl)
	}
}

// wsConn is a websocket connection with serialized writes. It implements
// stream.Emitter.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
	once sync.Once
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c, done: make(chan struct{})}
}

var errConnClosed = errors.New("connection closed")

// Emit writes one envelope. Safe for concurrent use.
func (c *wsConn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b, err := json.Marshal(types.Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *wsConn) emitError(code int, msg string) {
	_ = c.Emit(types.EventErrorMessage, types.ErrorPayload{
		Code:      code,
		Message:   msg,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

func (c *wsConn) ping() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// serve reads envelopes until the connection fails.
func (c *wsConn) serve(sess Session, lvl LogLevel) {
	c.conn.SetReadLimit(maxBodyBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go c.ping()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && lvl >= LevelDebug && zlog != nil {
				zlog.Debug().Str("session_id", sess.ID()).Err(err).Msg("realtime read ended")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		var env types.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
			c.emitError(http.StatusBadRequest, "Invalid message format")
			continue
		}
		if lvl >= LevelDebug && zlog != nil {
			zlog.Debug().Str("session_id", sess.ID()).Str("event", env.Event).Int("bytes", len(msg)).Msg("realtime event")
		}
		c.dispatch(sess, env)
	}
}

func (c *wsConn) dispatch(sess Session, env types.Envelope) {
	switch env.Event {
	case types.EventInitialize:
		var req types.InitializeRequest
		if !decodeData(env.Data, &req) {
			c.emitError(http.StatusBadRequest, "Invalid initialize payload")
			return
		}
		_ = sess.Initialize(req.ClientID, req.Config)
	case types.EventControl:
		var req types.ControlRequest
		if !decodeData(env.Data, &req) {
			c.emitError(http.StatusBadRequest, "Invalid control payload")
			return
		}
		_ = sess.Control(req.Action, req.Config)
	case types.EventVideoFrame:
		var f types.FrameMessage
		if !decodeData(env.Data, &f) {
			c.emitError(http.StatusBadRequest, "Invalid frame payload")
			return
		}
		_ = sess.SubmitFrame(&f)
	case types.EventJoinRoom:
		var req types.JoinRoomRequest
		if !decodeData(env.Data, &req) {
			c.emitError(http.StatusBadRequest, "Invalid join_room payload")
			return
		}
		_ = sess.JoinRoom(req.Room)
	default:
		c.emitError(http.StatusBadRequest, "Unknown event: "+env.Event)
	}
}

// decodeData unmarshals an event payload. A missing payload decodes to the
// zero value.
func decodeData(raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return true
	}
	return json.Unmarshal(raw, v) == nil
}
