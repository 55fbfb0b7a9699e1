// internal/httpserver/routes_leaderboard.go
//
// Leaderboard routes (public) and the caller's own stats:
//   - GET /leaderboard/summary?mode=&limit=       → wins/fewest/fastest at once
//   - GET /leaderboard/daily?date=&limit=         → winners of a daily card (default today)
//   - GET /leaderboard/{mode}?metric=&limit=      → one board
//   - GET /stats/me                               → per-mode aggregates (auth)

package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/cardle/internal/apperr"
	"github.com/robalobadob/cardle/internal/daily"
	"github.com/robalobadob/cardle/internal/game"
	"github.com/robalobadob/cardle/internal/leaderboard"
)

func (s *Server) mountLeaderboard() {
	s.r.Route("/leaderboard", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/daily", s.handleDailyBoard)
		r.Get("/{mode}", s.handleBoard)
	})
	s.r.With(s.requireAuth).Get("/stats/me", s.handleMyStats)
}

func parseMode(raw string) (game.Mode, error) {
	m, valid := game.ParseMode(raw)
	if !valid {
		return "", apperr.Validation("mode must be one of normal, daily, text, blur")
	}
	return m, nil
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(chi.URLParam(r, "mode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metric, valid := leaderboard.ParseMetric(r.URL.Query().Get("metric"))
	if !valid {
		s.writeError(w, r, apperr.Validation("metric must be one of wins, fewest, fastest"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.d.Board.Top(r.Context(), mode, metric, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "leaderboard", map[string]any{"mode": mode, "metric": metric, "entries": entries})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	mode, err := parseMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.d.Board.Summary(r.Context(), mode, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "leaderboard summary", sum)
}

func (s *Server) handleDailyBoard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(time.Now())
	} else if _, err := time.Parse(time.DateOnly, date); err != nil {
		s.writeError(w, r, apperr.Validation("date must be YYYY-MM-DD"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.d.Board.Daily(r.Context(), date, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "daily leaderboard", map[string]any{"date": date, "entries": entries})
}

func (s *Server) handleMyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.d.Board.UserStats(r.Context(), userFrom(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "stats", stats)
}
