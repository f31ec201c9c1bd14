package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tripcart/internal/auth"
	"github.com/dukerupert/tripcart/internal/handler"
	"github.com/dukerupert/tripcart/internal/middleware"
	"github.com/dukerupert/tripcart/internal/session"
	"github.com/dukerupert/tripcart/internal/store"
	ws "github.com/dukerupert/tripcart/internal/websocket"
)

// Options tune the HTTP surface and the sync behaviour.
type Options struct {
	// StaticDir is served at /. Empty disables static files.
	StaticDir     string
	BroadcastMode ws.Mode
	ToggleCAS     bool
	// WSRateLimit is the number of /ws upgrades per client IP per minute.
	WSRateLimit int
}

type Server struct {
	hub         *ws.Hub
	store       *store.Store
	verifier    auth.Verifier
	tripH       *handler.TripHandler
	rateLimiter *middleware.RateLimiter
	staticDir   string
	logger      *slog.Logger
}

func New(db *sql.DB, dialect store.Dialect, verifier auth.Verifier, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"), opts.BroadcastMode)

	tripStore := store.New(db, dialect, store.WithToggleCAS(opts.ToggleCAS))

	perMinute := opts.WSRateLimit
	if perMinute < 1 {
		perMinute = 30
	}

	return &Server{
		hub:         hub,
		store:       tripStore,
		verifier:    verifier,
		tripH:       handler.NewTripHandler(tripStore, logger.With("component", "api")),
		rateLimiter: middleware.PerMinute(perMinute),
		staticDir:   opts.StaticDir,
		logger:      logger,
	}
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /ws", middleware.RateLimit(s.rateLimiter, middleware.RealIP)(ws.HandleWebSocket(s.hub, s.newSession)))

	// Read-only snapshots for clients without a socket
	api := http.NewServeMux()
	api.HandleFunc("GET /api/trips", s.tripH.ListTrips)
	api.HandleFunc("GET /api/trips/{id}", s.tripH.GetTrip)
	mux.Handle("GET /api/", middleware.RequireBearer(s.verifier, s.logger.With("component", "api"))(api))
	mux.HandleFunc("GET /api/categories", s.tripH.Categories)

	if s.staticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) newSession(c *ws.Client) ws.Handler {
	return session.New(c.ID(), c, session.Deps{
		Store:    s.store,
		Verifier: s.verifier,
		Logger:   s.logger,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
