package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/cardle/internal/account"
	"github.com/robalobadob/cardle/internal/ads"
	"github.com/robalobadob/cardle/internal/card"
	"github.com/robalobadob/cardle/internal/coins"
	"github.com/robalobadob/cardle/internal/config"
	"github.com/robalobadob/cardle/internal/daily"
	"github.com/robalobadob/cardle/internal/db/dbtest"
	"github.com/robalobadob/cardle/internal/leaderboard"
	"github.com/robalobadob/cardle/internal/play"
	"github.com/robalobadob/cardle/internal/scryfall"
	"github.com/robalobadob/cardle/internal/store"
)

var (
	opt = &card.Card{
		Name: "Opt", Colors: []string{"U"}, TypeLine: "Instant", ManaValue: 1,
		SetName: "Ixalan", Rarity: card.RarityCommon, Artist: "Tyler Jacobson",
		OracleText: "Scry 1.\nDraw a card.", Legalities: map[string]string{"modern": "legal"},
	}
	shock = &card.Card{
		Name: "Shock", Colors: []string{"R"}, TypeLine: "Instant", ManaValue: 1,
		SetName: "Stronghold", Rarity: card.RarityCommon, Artist: "Randy Gallegos",
		OracleText: "Shock deals 2 damage to any target.", Legalities: map[string]string{},
	}
)

// fakeCatalog always picks Opt as the target.
type fakeCatalog struct{}

func (fakeCatalog) Named(_ context.Context, name string) (*card.Card, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "opt":
		return opt, nil
	case "shock":
		return shock, nil
	}
	return nil, scryfall.ErrCardNotFound
}

func (fakeCatalog) Random(context.Context) (*card.Card, error) { return opt, nil }

func (fakeCatalog) Autocomplete(_ context.Context, prefix string) ([]string, error) {
	if len(prefix) < 2 {
		return []string{}, nil
	}
	return []string{"Opt", "Opposition"}, nil
}

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	cfg.RateLimit.RPS, cfg.RateLimit.Burst = 1000, 1000
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	db := dbtest.New(t)
	ledger := coins.NewLedger(db)
	board := leaderboard.New(db)
	game := play.New(play.Deps{
		Cards:    fakeCatalog{},
		Sessions: store.NewMemoryStore(time.Hour),
		Dailies:  daily.NewStore(db),
		Pool:     daily.NewPool([]string{"Opt"}, cfg.Daily.Salt),
		Matches:  board,
		Wallet:   ledger,
	}, cfg.Game)
	tracker := ads.NewTracker(cfg.Ads, ads.CreditFunc(func(ctx context.Context, userID string, amount int64, reason string) error {
		_, err := ledger.Credit(ctx, userID, amount, reason)
		return err
	}))
	return New(cfg, Deps{
		Accounts: account.NewStore(db),
		Game:     game,
		Cards:    fakeCatalog{},
		Ledger:   ledger,
		Board:    board,
		Ads:      tracker,
	})
}

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// client keeps a token and cookies between requests.
type client struct {
	t       *testing.T
	h       http.Handler
	token   string
	cookies map[string]*http.Cookie
	header  http.Header
}

func newClient(t *testing.T, s *Server) *client {
	return &client{t: t, h: s.Handler(), cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, path string, body any) (*httptest.ResponseRecorder, response) {
	c.t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.header {
		req.Header[k] = vs
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}

	var res response
	require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return rec, res
}

func (c *client) data(res response, v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(res.Data, v))
}

func (c *client) signup(name string) {
	c.t.Helper()
	rec, res := c.do(http.MethodPost, "/auth/signup",
		map[string]string{"username": name, "password": "correct-horse"})
	require.Equal(c.t, http.StatusOK, rec.Code, res.Message)
	var out struct {
		Token string `json:"token"`
	}
	c.data(res, &out)
	require.NotEmpty(c.t, out.Token)
	c.token = out.Token
}

func (c *client) start(mode string) string {
	c.t.Helper()
	rec, res := c.do(http.MethodPost, "/game/start", map[string]string{"mode": mode})
	require.Equal(c.t, http.StatusOK, rec.Code, res.Message)
	var st play.StartResult
	c.data(res, &st)
	return st.GameID
}

func TestHealthAndNotFound(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))

	rec, res := c.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Success)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	rec, res = c.do(http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, res.Success)
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	c := newClient(t, s)

	rec, _ := c.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.signup("jace")
	rec, res := c.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me authUser
	c.data(res, &me)
	assert.Equal(t, "jace", me.Username)

	other := newClient(t, s)
	rec, res = other.do(http.MethodPost, "/auth/signup",
		map[string]string{"username": "JACE", "password": "correct-horse"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, res.Success)

	rec, res = other.do(http.MethodPost, "/auth/signup",
		map[string]string{"username": "x", "password": "correct-horse"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, res.Message, "username")

	rec, _ = other.do(http.MethodPost, "/auth/login",
		map[string]string{"username": "jace", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = other.do(http.MethodPost, "/auth/login",
		map[string]string{"username": "jace", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, other.cookies, "cardle_token")

	bad := newClient(t, s)
	bad.token = "not-a-jwt"
	rec, _ = bad.do(http.MethodGet, "/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuestGame(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))
	id := c.start("normal")
	assert.Contains(t, c.cookies, "cardle_anon")

	rec, res := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error, "raw error outside production")

	rec, _ = c.do(http.MethodPost, "/game/guess", `{"gameId":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": "missing", "guess": "Opt"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Black Lotus"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, res = c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Shock"})
	require.Equal(t, http.StatusOK, rec.Code)
	var g play.GuessResult
	c.data(res, &g)
	assert.False(t, g.Correct)
	assert.Equal(t, "correct", string(g.Feedback.Type))

	rec, res = c.do(http.MethodGet, "/game/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st play.StatusResult
	c.data(res, &st)
	assert.Equal(t, 1, st.Attempts)
	assert.Nil(t, st.Target)

	rec, res = c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "opt"})
	require.Equal(t, http.StatusOK, rec.Code)
	c.data(res, &g)
	assert.True(t, g.Correct)
	assert.Equal(t, "Opt", g.Target.Name)
	assert.Zero(t, g.Reward)

	rec, _ = c.do(http.MethodPost, "/game/start", map[string]string{"mode": "hard"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignedInWinPaysAndRanks(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))
	c.signup("chandra")

	id := c.start("blur")
	rec, res := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Opt"})
	require.Equal(t, http.StatusOK, rec.Code)
	var g play.GuessResult
	c.data(res, &g)
	assert.Equal(t, int64(15), g.Reward)

	rec, res = c.do(http.MethodGet, "/coins/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acc coins.Account
	c.data(res, &acc)
	assert.Equal(t, int64(15), acc.Balance)

	rec, res = c.do(http.MethodGet, "/leaderboard/blur?metric=fewest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	c.data(res, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "chandra", board.Entries[0].Name)

	rec, _ = c.do(http.MethodGet, "/leaderboard/blur?metric=luck", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res = c.do(http.MethodGet, "/leaderboard/summary?mode=blur", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sum leaderboard.Summary
	c.data(res, &sum)
	assert.Len(t, sum.Wins, 1)

	rec, res = c.do(http.MethodGet, "/stats/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats []leaderboard.ModeStats
	c.data(res, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Wins)
}

func TestDailyRoutes(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	c := newClient(t, s)

	rec, res := c.do(http.MethodPost, "/daily/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, res.Message)
	var st play.StartResult
	c.data(res, &st)
	assert.Equal(t, daily.DateKey(time.Now()), st.Date)

	rec, res = c.do(http.MethodPost, "/daily/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var again play.StartResult
	c.data(res, &again)
	assert.True(t, again.Resumed)
	assert.Equal(t, st.GameID, again.GameID)

	// Another browser cannot play this game.
	stranger := newClient(t, s)
	rec, _ = stranger.do(http.MethodPost, "/daily/guess", map[string]any{"gameId": st.GameID, "guess": "Opt"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = c.do(http.MethodPost, "/daily/guess", map[string]any{"gameId": st.GameID, "guess": "Opt"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res = c.do(http.MethodPost, "/daily/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, res.Success)

	rec, res = c.do(http.MethodGet, "/leaderboard/daily", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board struct {
		Entries []leaderboard.Entry `json:"entries"`
	}
	c.data(res, &board)
	assert.Len(t, board.Entries, 1)

	rec, _ = c.do(http.MethodGet, "/leaderboard/daily?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForgedGuestCookieGetsFreshID(t *testing.T) {
	s := newTestServer(t, testConfig(t))
	victim := newClient(t, s)
	victim.signup("nissa")
	rec, res := victim.do(http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me authUser
	victim.data(res, &me)

	attacker := newClient(t, s)
	attacker.cookies["cardle_anon"] = &http.Cookie{Name: "cardle_anon", Value: me.ID}
	rec, res = attacker.do(http.MethodPost, "/daily/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, res.Message)
	var st play.StartResult
	attacker.data(res, &st)
	minted := attacker.cookies["cardle_anon"].Value
	assert.NotEqual(t, me.ID, minted)
	assert.True(t, strings.HasPrefix(minted, play.GuestPrefix))

	rec, _ = attacker.do(http.MethodPost, "/game/"+st.GameID+"/giveup", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res = victim.do(http.MethodPost, "/daily/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, res.Message)
	var own play.StartResult
	victim.data(res, &own)
	assert.False(t, own.Resumed)
	assert.NotEqual(t, st.GameID, own.GameID)
}

func TestCoinsAndHints(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))

	rec, _ := c.do(http.MethodGet, "/coins/balance", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c.signup("nissa")
	id := c.start("normal")

	rec, _ = c.do(http.MethodPost, "/game/hint", map[string]string{"gameId": id, "kind": "set"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no coins yet")

	rec, _ = c.do(http.MethodPost, "/coins/spend", map[string]any{"amount": 5, "reason": "shop"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = c.do(http.MethodPost, "/coins/add", map[string]any{"amount": -1, "reason": "cheat"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = c.do(http.MethodPost, "/coins/add", map[string]any{"amount": 10, "reason": "gift"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res := c.do(http.MethodPost, "/game/hint", map[string]string{"gameId": id, "kind": "set"})
	require.Equal(t, http.StatusOK, rec.Code, res.Message)
	var h play.HintResult
	c.data(res, &h)
	assert.Equal(t, "Ixalan", h.Value)
	assert.Equal(t, int64(7), h.Balance)

	rec, _ = c.do(http.MethodPost, "/game/hint", map[string]string{"gameId": id, "kind": "mana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res = c.do(http.MethodGet, "/coins/history?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []coins.Transaction
	c.data(res, &txs)
	require.Len(t, txs, 2)
	assert.Equal(t, "hint:set", txs[0].Reason)

	rec, _ = c.do(http.MethodGet, "/coins/history?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res = c.do(http.MethodGet, "/coins/statement", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stmt coins.Statement
	c.data(res, &stmt)
	assert.Equal(t, int64(7), stmt.Account.Balance)
}

func TestAds(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))

	rec, _ := c.do(http.MethodGet, "/ads/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	c.signup("teferi")

	rec, _ = c.do(http.MethodGet, "/ads/availability?type=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res := c.do(http.MethodPost, "/ads/watch", map[string]string{"type": "rewarded"})
	require.Equal(t, http.StatusOK, rec.Code, res.Message)
	var wr struct {
		Reward int64 `json:"reward"`
	}
	c.data(res, &wr)
	assert.Equal(t, int64(20), wr.Reward)

	rec, res = c.do(http.MethodPost, "/ads/watch", map[string]string{"type": "rewarded"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, res.Message, "cooldown")

	rec, res = c.do(http.MethodGet, "/coins/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acc coins.Account
	c.data(res, &acc)
	assert.Equal(t, int64(20), acc.Balance)

	rec, res = c.do(http.MethodGet, "/ads/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var st ads.Stats
	c.data(res, &st)
	assert.Equal(t, 1, st.Today["rewarded"])
}

func TestGuessRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RPS, cfg.RateLimit.Burst = 0.01, 1
	c := newClient(t, newTestServer(t, cfg))
	id := c.start("normal")

	rec, _ := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Shock"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Shock"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, res.Success)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestGuessRateLimit_IgnoresSpoofedAddress(t *testing.T) {
	cfg := testConfig(t)
	cfg.RateLimit.RPS, cfg.RateLimit.Burst = 0.001, 1
	c := newClient(t, newTestServer(t, cfg))
	id := c.start("normal")

	limited := 0
	for i := 0; i < 10; i++ {
		c.header = http.Header{}
		c.header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i+1))
		c.header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rec, _ := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Shock"})
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 9, limited)
}

func TestGuessRateLimit_TrustedProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.TrustProxy = true
	cfg.RateLimit.RPS, cfg.RateLimit.Burst = 0.001, 1
	c := newClient(t, newTestServer(t, cfg))
	id := c.start("normal")

	guess := func(ip string) int {
		c.header = http.Header{"X-Real-Ip": {ip}}
		rec, _ := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": id, "guess": "Shock"})
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, guess("203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, guess("203.0.113.1"))
	assert.Equal(t, http.StatusOK, guess("203.0.113.2"))
}

func TestAutocomplete(t *testing.T) {
	c := newClient(t, newTestServer(t, testConfig(t)))
	rec, res := c.do(http.MethodGet, "/cards/autocomplete?q=op", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	c.data(res, &names)
	assert.Equal(t, []string{"Opt", "Opposition"}, names)
}

func TestProductionHidesRawError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Env = "production"
	c := newClient(t, newTestServer(t, cfg))
	rec, res := c.do(http.MethodPost, "/game/guess", map[string]any{"gameId": "x", "guess": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, res.Error)
}
