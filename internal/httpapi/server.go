package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emotiond/internal/stream"
	"emotiond/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
	// Connect admits a realtime client before the websocket upgrade.
	Connect(ctx context.Context, token string) (Session, error)
	Disconnect(id string)
}

// Session is one realtime connection as seen by the websocket handler.
// Session methods report per-event failures to the client themselves.
type Session interface {
	ID() string
	Attach(e stream.Emitter)
	Initialize(clientID string, rawConfig json.RawMessage) error
	Control(action string, rawConfig json.RawMessage) error
	SubmitFrame(f *types.FrameMessage) error
	JoinRoom(room string) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/emotion-detection", realtimeHandler(svc, newUpgrader()))

	r.Group(func(r chi.Router) {
		// Compression for JSON endpoints only; the websocket route hijacks.
		r.Use(middleware.Compress(5))

		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, types.ModelsResponse{Models: nonNilModels(svc.ListModels())})
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.Status())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}

func nonNilModels(m []types.Model) []types.Model {
	if m == nil {
		return []types.Model{}
	}
	return m
}
