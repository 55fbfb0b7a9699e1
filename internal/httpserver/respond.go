// internal/httpserver/respond.go
//
// Response envelope shared by every route:
//   success → {"success":true,"message":...,"data":...}
//   failure → {"success":false,"message":...} (+ "error" outside production)
//
// Errors are mapped to status codes in one place (writeError) through their
// apperr kind. Untagged errors are internal.

package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/cardle/internal/apperr"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// maxBody bounds request bodies.
const maxBody = 1 << 16

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// writeError maps err to a status and writes the failure envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, tagged := apperr.As(err)
	if !tagged {
		e = apperr.Internal("internal server error", err)
	}
	status := apperr.Status(e.Kind)

	body := envelope{Success: false, Message: e.Message}
	if !s.production {
		body.Error = err.Error()
	}
	if e.Kind == apperr.KindRateLimited && e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Str("kind", e.Kind.String()).Int("status", status).Msg("request failed")

	writeJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.KindValidation, "invalid JSON body", err)
	}
	return nil
}
