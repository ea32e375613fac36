// Package ingress exposes the HTTP endpoints that turn provider callbacks and
// operator requests into domain events.
package ingress

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Vault-Concierge/agent/contract"
)

const maxBodyBytes = 1 << 20

type Dispatcher interface {
	Dispatch(ctx context.Context, evt contractx.Event) error
}

// Verifier checks the signature QStash puts on each delivery.
type Verifier interface {
	Verify(signature string, body []byte, destination string) error
}

type Option func(*Server)

// WithEventDelivery serves POST /api/events, dispatching verified QStash
// deliveries synchronously. destination is the public URL QStash signs.
func WithEventDelivery(d Dispatcher, v Verifier, destination string) Option {
	return func(s *Server) {
		s.dispatcher = d
		s.verifier = v
		s.destination = destination
	}
}

type Server struct {
	store  contractx.Store
	events contractx.EventSender

	dispatcher  Dispatcher
	verifier    Verifier
	destination string
}

func New(store contractx.Store, events contractx.EventSender, opts ...Option) *Server {
	s := &Server{store: store, events: events}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/invites", s.handleCreateInvite)
	mux.HandleFunc("POST /api/sms/inbound", s.handleInboundSMS)
	if s.dispatcher != nil && s.verifier != nil {
		mux.HandleFunc("POST /api/events", s.handleEvent)
	}
	return withLogging(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.Logger.With().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := zerolog.InfoLevel
		if rec.status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		logger.WithLevel(level).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
