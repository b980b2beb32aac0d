package server

import (
	"net/http"
	"time"

	"github.com/fotofoto/filmreturn/internal/events"
	"github.com/fotofoto/filmreturn/internal/metrics"
	"github.com/fotofoto/filmreturn/internal/session"
	"github.com/fotofoto/filmreturn/internal/wizard"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

type Server struct {
	Labels   wizard.LabelSource
	Images   wizard.ImagePersister
	Carts    wizard.CartCreator
	Events   events.Notifier
	Sessions *session.Manager
	Limits   Limits

	router *mux.Router
}

// Limits guard the routes that spend money or create orders. A nil limiter
// leaves its routes unlimited.
type Limits struct {
	Labels *IPRateLimiter
	Carts  *IPRateLimiter
}

func MakeServer(
	deps wizard.Deps,
	sessions *session.Manager,
	limits Limits,
) *Server {
	s := &Server{
		Labels:   deps.Labels,
		Images:   deps.Images,
		Carts:    deps.Carts,
		Events:   deps.Events,
		Sessions: sessions,
		Limits:   limits,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	limited := func(l *IPRateLimiter, h http.HandlerFunc) http.Handler {
		if l == nil {
			return h
		}
		return l.Middleware(h)
	}

	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet).Name("healthz")

	api := s.router.PathPrefix("/api").Subrouter()
	api.Handle("/cart-create", limited(s.Limits.Carts, s.createCart)).Methods(http.MethodPost).Name("cart_create")
	api.HandleFunc("/klaviyo-event", s.sendEvent).Methods(http.MethodPost).Name("event")
	api.Handle("/replacement-label", limited(s.Limits.Labels, s.replacementLabel)).Methods(http.MethodPost).Name("replacement_label")
	api.HandleFunc("/upload-label", s.uploadLabel).Methods(http.MethodPost).Name("upload_label")

	api.HandleFunc("/sessions", s.startSession).Methods(http.MethodPost).Name("session_start")
	api.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet).Name("session_get")
	api.HandleFunc("/sessions/{id}/email", s.setEmail).Methods(http.MethodPut).Name("session_email")
	api.HandleFunc("/sessions/{id}/format", s.selectFormat).Methods(http.MethodPut).Name("session_format")
	api.HandleFunc("/sessions/{id}/label/capture", s.captureLabel).Methods(http.MethodPost).Name("session_capture")
	api.Handle("/sessions/{id}/label/replacement", limited(s.Limits.Labels, s.sessionReplacementLabel)).
		Methods(http.MethodPost).Name("session_replacement")
	api.HandleFunc("/sessions/{id}/label", s.clearLabel).Methods(http.MethodDelete).Name("session_clear_label")
	api.HandleFunc("/sessions/{id}/advance", s.advance).Methods(http.MethodPost).Name("session_advance")
	api.HandleFunc("/sessions/{id}/retreat", s.retreat).Methods(http.MethodPost).Name("session_retreat")
	api.Handle("/sessions/{id}/commit", limited(s.Limits.Carts, s.commit)).Methods(http.MethodPost).Name("session_commit")

	s.router.Use(countRequests)
}

// Handler wraps the router with request logging.
func (s *Server) Handler(logger zerolog.Logger) http.Handler {
	var h http.Handler = s.router
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.NewHandler(logger)(h)
	return h
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := "unknown"
		if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
			endpoint = route.GetName()
		}
		defer metrics.BenchmarkMethod(time.Now(), "server.request", []string{"endpoint:" + endpoint})
		metrics.Incr("server.requests", []string{"endpoint:" + endpoint})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
