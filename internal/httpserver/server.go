// internal/httpserver/server.go
//
// HTTP server wiring for the card-guessing backend.
// Responsibilities:
//   - Router + middleware (request IDs, access log, CORS, timeouts, panic recovery).
//   - Public endpoints: "/", "/health", leaderboards, card autocomplete, ad config.
//   - Game + daily endpoints (optional auth): guests play with an anonymous cookie id.
//   - Auth, coins, hints, stats and ads endpoints (require auth).
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Guess and hint endpoints are rate limited per client IP.

package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/cardle/internal/account"
	"github.com/robalobadob/cardle/internal/ads"
	"github.com/robalobadob/cardle/internal/coins"
	"github.com/robalobadob/cardle/internal/config"
	"github.com/robalobadob/cardle/internal/leaderboard"
	"github.com/robalobadob/cardle/internal/play"
)

// CardSearch suggests card names for the guess box.
type CardSearch interface {
	Autocomplete(ctx context.Context, prefix string) ([]string, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Accounts *account.Store
	Game     *play.Service
	Cards    CardSearch
	Ledger   *coins.Ledger
	Board    *leaderboard.Board
	Ads      *ads.Tracker
}

// Server bundles the router and the services it exposes.
type Server struct {
	r          *chi.Mux
	d          Deps
	auth       config.AuthConfig
	production bool
	limiter    *ipLimiter
	http       *http.Server
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		r:          chi.NewRouter(),
		d:          d,
		auth:       cfg.Auth,
		production: cfg.Server.Production(),
		limiter:    newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}

	s.r.Use(chimw.RequestID)
	if cfg.Server.TrustProxy {
		s.r.Use(chimw.RealIP)
	}
	s.r.Use(hlog.NewHandler(log.Logger))
	s.r.Use(accessLog)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	s.r.Use(jsonContentType)
	s.r.Use(cors(cfg.Server.ClientOrigin))

	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		ok(w, "cardle api", map[string]any{
			"service": "cardle-go",
			"endpoints": []string{"/health", "/auth/*", "/game/*", "/daily/*", "/cards/*",
				"/coins/*", "/leaderboard/*", "/stats/me", "/ads/*"},
		})
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, "ok", map[string]any{"time": time.Now().UTC()})
	})

	s.mountAuth()
	s.mountGame()
	s.mountCoins()
	s.mountLeaderboard()
	s.mountAds()

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "route not found: " + r.URL.Path})
	})
	s.r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "method not allowed"})
	})
	return s
}

// Handler exposes the router (useful for tests).
func (s *Server) Handler() http.Handler { return s.r }

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for a single origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessLog writes one line per request.
var accessLog = hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
	var ev *zerolog.Event
	switch {
	case status >= 500:
		ev = hlog.FromRequest(r).Error()
	case status >= 400:
		ev = hlog.FromRequest(r).Warn()
	default:
		ev = hlog.FromRequest(r).Info()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", d).
		Str("requestId", chimw.GetReqID(r.Context())).
		Str("ip", r.RemoteAddr).
		Msg("request")
})
