// internal/httpserver/routes_ads.go
//
// Rewarded ad routes:
//   - GET  /ads/config                   → limits and ad types (public)
//   - GET  /ads/availability?type=       → may the caller watch now (auth)
//   - POST /ads/watch {type}             → record a view and credit the reward (auth)
//   - GET  /ads/stats                    → caller's recent views (auth)
//
// A blocked watch answers 429 with the availability (reason, retry time) as data.

package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/robalobadob/cardle/internal/ads"
	"github.com/robalobadob/cardle/internal/apperr"
)

func (s *Server) mountAds() {
	s.r.Route("/ads", func(r chi.Router) {
		r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
			ok(w, "ad config", map[string]any{"config": s.d.Ads.Config(), "types": s.d.Ads.Types()})
		})
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/availability", s.handleAdAvailability)
			r.Post("/watch", s.handleAdWatch)
			r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
				ok(w, "ad stats", s.d.Ads.Stats(userFrom(r).ID))
			})
		})
	})
}

func adError(err error) error {
	if errors.Is(err, ads.ErrUnknownType) {
		return apperr.Wrap(apperr.KindValidation, "unknown ad type", err)
	}
	return err
}

func (s *Server) handleAdAvailability(w http.ResponseWriter, r *http.Request) {
	av, err := s.d.Ads.Check(userFrom(r).ID, r.URL.Query().Get("type"))
	if err != nil {
		s.writeError(w, r, adError(err))
		return
	}
	ok(w, "ad availability", av)
}

type watchReq struct {
	Type string `json:"type"`
}

func (s *Server) handleAdWatch(w http.ResponseWriter, r *http.Request) {
	var req watchReq
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.d.Ads.Watch(r.Context(), userFrom(r).ID, req.Type)
	if err != nil {
		s.writeError(w, r, adError(err))
		return
	}
	if !res.Availability.Allowed {
		secs := int(math.Ceil(res.Availability.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, envelope{
			Message: "ad not available: " + string(res.Availability.Reason),
			Data:    res,
		})
		return
	}
	ok(w, "ad reward credited", res)
}
