// internal/httpserver/auth.go
//
// Local accounts over HTTP: signup, login, logout, /auth/me.
// Tokens are HS256 JWTs carrying id/username, sent back both in the body and
// as an HttpOnly cookie. Requests authenticate with "Authorization: Bearer"
// or the cookie; the user must still exist.
//
// Guests get a long-lived anonymous cookie id so the daily game can be
// limited to one play per browser.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/robalobadob/cardle/internal/account"
	"github.com/robalobadob/cardle/internal/apperr"
	"github.com/robalobadob/cardle/internal/play"
)

const anonCookieTTL = 180 * 24 * time.Hour

// authUser is placed into request context by the auth middleware.
type authUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

type ctxUserKey struct{}

func userFrom(r *http.Request) *authUser {
	u, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	return u
}

func (s *Server) mountAuth() {
	s.r.Post("/auth/signup", s.handleSignup)
	s.r.Post("/auth/login", s.handleLogin)
	s.r.Post("/auth/logout", s.handleLogout)
	s.r.With(s.requireAuth).Get("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		ok(w, "current user", userFrom(r))
	})
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResult struct {
	User      *account.User `json:"user"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.d.Accounts.Signup(r.Context(), body.Username, body.Email, body.Password)
	switch {
	case errors.Is(err, account.ErrUsernameTaken):
		s.writeError(w, r, apperr.Conflict("username taken"))
		return
	case errors.Is(err, account.ErrInvalidSignup):
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, strings.TrimPrefix(err.Error(), account.ErrInvalidSignup.Error()+": "), err))
		return
	case err != nil:
		s.writeError(w, r, err)
		return
	}
	s.issue(w, r, u, "account created")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.d.Accounts.Login(r.Context(), body.Username, body.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		s.writeError(w, r, apperr.Unauthorized("invalid username or password"))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.issue(w, r, u, "logged in")
}

// issue signs a token for u, sets the auth cookie and writes the result.
func (s *Server) issue(w http.ResponseWriter, r *http.Request, u *account.User, msg string) {
	tok, exp, err := s.signJWT(u.ID, u.Username, time.Now())
	if err != nil {
		s.writeError(w, r, apperr.Internal("could not sign token", err))
		return
	}
	s.setCookie(w, s.auth.CookieName, tok, exp)
	ok(w, msg, authResult{User: u, Token: tok, ExpiresAt: exp})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setCookie(w, s.auth.CookieName, "", time.Time{})
	ok(w, "logged out", nil)
}

// ------------------------------ JWT & cookies ------------------------------

func (s *Server) signJWT(id, username string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.auth.TokenTTL())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":       id,
		"username": username,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	})
	ss, err := t.SignedString([]byte(s.auth.JWTSecret))
	return ss, exp, err
}

// parseJWT verifies tok and returns its subject id.
func (s *Server) parseJWT(tok string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) {
		return []byte(s.auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	id, _ := claims["id"].(string)
	if id == "" {
		return "", errors.New("token has no id")
	}
	return id, nil
}

// setCookie writes an HttpOnly cookie; a zero exp deletes it.
func (s *Server) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.production,
		SameSite: http.SameSiteLaxMode,
	}
	if s.production {
		c.SameSite = http.SameSiteNoneMode
	}
	if exp.IsZero() {
		c.MaxAge = -1
	} else {
		c.Expires = exp
	}
	http.SetCookie(w, c)
}

// bearerOrCookie extracts a bearer token from Authorization header or auth cookie.
func (s *Server) bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.auth.CookieName); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the request's user, or nil when there is no token.
func (s *Server) authenticate(ctx context.Context, r *http.Request) (*authUser, error) {
	tok := s.bearerOrCookie(r)
	if tok == "" {
		return nil, nil
	}
	id, err := s.parseJWT(tok)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, "invalid token", err)
	}
	u, err := s.d.Accounts.ByID(ctx, id)
	if errors.Is(err, account.ErrNotFound) {
		return nil, apperr.Unauthorized("invalid token")
	}
	if err != nil {
		return nil, err
	}
	return &authUser{ID: u.ID, Username: u.Username, Email: u.Email}, nil
}

// --------------------------- auth middleware -------------------------------

// withOptionalAuth decorates requests with user context if a valid token is
// present. It never rejects; used for routes where guests are allowed.
func (s *Server) withOptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, err := s.authenticate(r.Context(), r); err == nil && u != nil {
			r = r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u))
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth enforces a valid token for an existing user.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r.Context(), r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if u == nil {
			s.writeError(w, r, apperr.Unauthorized("sign in required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, u)))
	})
}

// ensureAnonID returns the anonymous cookie id, setting a new one if it is
// missing or was not minted here.
func (s *Server) ensureAnonID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.auth.AnonCookieName); err == nil && validAnonID(c.Value) {
		return c.Value
	}
	id := play.GuestPrefix + uuid.NewString()
	s.setCookie(w, s.auth.AnonCookieName, id, time.Now().Add(anonCookieTTL))
	return id
}

func validAnonID(v string) bool {
	rest, found := strings.CutPrefix(v, play.GuestPrefix)
	if !found {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// player identifies the caller to the game service.
func (s *Server) player(w http.ResponseWriter, r *http.Request) play.Player {
	if u := userFrom(r); u != nil {
		return play.Player{ID: u.ID, Name: u.Username, Email: u.Email}
	}
	return play.Player{ID: s.ensureAnonID(w, r), Guest: true}
}
