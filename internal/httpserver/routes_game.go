// internal/httpserver/routes_game.go
//
// Game routes (optional auth; guests play under their anonymous cookie id):
//   - POST /game/start        {mode}          → start a game
//   - POST /game/guess        {gameId, guess} → score a guess (rate limited)
//   - GET  /game/{id}/status                  → session state
//   - POST /game/{id}/giveup                  → end the game, reveal the card
//   - POST /game/hint         {gameId, kind}  → buy a hint (auth, rate limited)
//   - POST /daily/start                       → start or resume today's daily game
//   - POST /daily/guess       {gameId, guess} → score a daily guess (rate limited)
//   - GET  /cards/autocomplete?q=             → card name suggestions

package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/cardle/internal/apperr"
	"github.com/robalobadob/cardle/internal/game"
	"github.com/robalobadob/cardle/internal/play"
)

func (s *Server) mountGame() {
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth)
		r.Post("/game/start", s.handleStart)
		r.With(s.rateLimit).Post("/game/guess", s.handleGuess)
		r.Get("/game/{id}/status", s.handleStatus)
		r.Post("/game/{id}/giveup", s.handleGiveUp)

		r.Post("/daily/start", s.handleDailyStart)
		r.With(s.rateLimit).Post("/daily/guess", s.handleGuess)
	})
	s.r.With(s.rateLimit, s.requireAuth).Post("/game/hint", s.handleHint)
	s.r.Get("/cards/autocomplete", s.handleAutocomplete)
}

type startReq struct {
	Mode string `json:"mode"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	mode, valid := game.ParseMode(req.Mode)
	if !valid {
		s.writeError(w, r, apperr.Validation("mode must be one of normal, daily, text, blur"))
		return
	}
	res, err := s.d.Game.Start(r.Context(), mode, s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "game started", res)
}

func (s *Server) handleDailyStart(w http.ResponseWriter, r *http.Request) {
	res, err := s.d.Game.Start(r.Context(), game.ModeDaily, s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "daily game started"
	if res.Resumed {
		msg = "daily game resumed"
	}
	ok(w, msg, res)
}

// guessReq keeps guess raw so a non-string value is rejected rather than
// silently decoded.
type guessReq struct {
	GameID string          `json:"gameId"`
	Guess  json.RawMessage `json:"guess"`
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req guessReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var guess string
	if err := json.Unmarshal(req.Guess, &guess); err != nil || strings.TrimSpace(guess) == "" {
		s.writeError(w, r, apperr.Validation("guess must be a non-empty string"))
		return
	}
	res, err := s.d.Game.Guess(r.Context(), req.GameID, guess, s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "incorrect guess"
	if res.Correct {
		msg = "correct guess"
	}
	ok(w, msg, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.d.Game.Status(r.Context(), chi.URLParam(r, "id"), s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "game status", res)
}

func (s *Server) handleGiveUp(w http.ResponseWriter, r *http.Request) {
	res, err := s.d.Game.GiveUp(r.Context(), chi.URLParam(r, "id"), s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "game over", res)
}

type hintReq struct {
	GameID string `json:"gameId"`
	Kind   string `json:"kind"`
}

func (s *Server) handleHint(w http.ResponseWriter, r *http.Request) {
	var req hintReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.GameID == "" {
		s.writeError(w, r, apperr.Validation("gameId is required"))
		return
	}
	res, err := s.d.Game.Hint(r.Context(), req.GameID, play.HintKind(req.Kind), s.player(w, r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, "hint revealed", res)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	names, err := s.d.Cards.Autocomplete(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, apperr.Internal("card search failed", err))
		return
	}
	ok(w, "suggestions", names)
}
