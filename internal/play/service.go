// internal/play/service.go
//
// Game service: the control flow between the card gateway, the session
// store, the comparator and the persistence of results.
//
//   Start → a target is assigned and the session stored.
//   Guess → the guessed name is resolved, scored and the session updated.
//           On a win the match is recorded and coins credited (signed-in
//           players only); normal/text/blur sessions are deleted, daily
//           sessions are kept finished and their daily row closed.
//   Hint  → a clue bought with coins.
//   GiveUp→ the session ends lost and the target is revealed.
//
// Work on one session is serialized by a per-session lock, so two
// concurrent winning guesses cannot both be recorded.

package play

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/cardle/internal/apperr"
	"github.com/robalobadob/cardle/internal/card"
	"github.com/robalobadob/cardle/internal/coins"
	"github.com/robalobadob/cardle/internal/daily"
	"github.com/robalobadob/cardle/internal/game"
	"github.com/robalobadob/cardle/internal/leaderboard"
	"github.com/robalobadob/cardle/internal/scryfall"
	"github.com/robalobadob/cardle/internal/store"
)

// Cards resolves guesses and picks targets.
type Cards interface {
	Named(ctx context.Context, name string) (*card.Card, error)
	Random(ctx context.Context) (*card.Card, error)
}

// Dailies persists daily plays.
type Dailies interface {
	Begin(ctx context.Context, p daily.Play) error
	Find(ctx context.Context, userID, date string) (daily.Play, error)
	Finish(ctx context.Context, userID, date string, won bool, attempts int, elapsed time.Duration) error
}

// Pool picks the daily card name.
type Pool interface {
	CardFor(t time.Time) string
}

// Matches records won games.
type Matches interface {
	Record(ctx context.Context, m leaderboard.Match) error
}

// Wallet moves coins.
type Wallet interface {
	Credit(ctx context.Context, userID string, amount int64, reason string) (coins.Account, error)
	Debit(ctx context.Context, userID string, amount int64, reason string) (coins.Account, error)
	Balance(ctx context.Context, userID string) (coins.Account, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Cards    Cards
	Sessions store.Store
	Dailies  Dailies
	Pool     Pool
	Matches  Matches
	Wallet   Wallet
}

// Player identifies the caller. Guests carry an anonymous id.
type Player struct {
	ID    string
	Name  string
	Email string
	Guest bool
}

// GuestPrefix starts every id minted for an anonymous player. Account ids
// never carry it.
const GuestPrefix = "anon-"

// checkPlayer keeps guest ids and account ids apart, so a guest can never
// act as a signed-in player.
func checkPlayer(p Player) error {
	if p.ID != "" && p.Guest != strings.HasPrefix(p.ID, GuestPrefix) {
		return apperr.Forbidden("player id does not match its account type")
	}
	return nil
}

// Service runs games. It is safe for concurrent use.
type Service struct {
	Deps
	cfg   Config
	locks *keyLock
	now   func() time.Time
	newID func() string
}

func New(d Deps, cfg Config) *Service {
	return &Service{
		Deps:  d,
		cfg:   cfg,
		locks: newKeyLock(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// StartResult is returned when a game starts or a daily game resumes.
type StartResult struct {
	GameID       string    `json:"gameId"`
	Mode         game.Mode `json:"mode"`
	Date         string    `json:"date,omitempty"`
	Attempts     int       `json:"attempts"`
	Guesses      []string  `json:"guesses"`
	Resumed      bool      `json:"resumed,omitempty"`
	CensoredText string    `json:"censoredText,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	BlurRadius   float64   `json:"blurRadius,omitempty"`
}

// GuessResult is the outcome of one guess.
type GuessResult struct {
	Correct     bool              `json:"correct"`
	Attempts    int               `json:"attempts"`
	Guessed     card.Public       `json:"guessed"`
	Feedback    game.Feedback     `json:"feedback"`
	OracleText  string            `json:"oracleText"`
	Legalities  map[string]string `json:"legalities"`
	BlurRadius  float64           `json:"blurRadius,omitempty"`
	Target      *card.Card        `json:"target,omitempty"`
	TimeSpentMs int64             `json:"timeSpentMs,omitempty"`
	Reward      int64             `json:"reward,omitempty"`
	Balance     *int64            `json:"balance,omitempty"`
}

// StatusResult describes a stored session. The target is included only
// once the game is over.
type StatusResult struct {
	GameID       string     `json:"gameId"`
	Mode         game.Mode  `json:"mode"`
	Date         string     `json:"date,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	Attempts     int        `json:"attempts"`
	Guesses      []string   `json:"guesses"`
	Finished     bool       `json:"finished"`
	Won          bool       `json:"won"`
	HintsUsed    []string   `json:"hintsUsed"`
	CensoredText string     `json:"censoredText,omitempty"`
	BlurRadius   float64    `json:"blurRadius,omitempty"`
	ImageURL     string     `json:"imageUrl,omitempty"`
	Target       *card.Card `json:"target,omitempty"`
}

// HintResult is a purchased clue.
type HintResult struct {
	Kind    HintKind `json:"kind"`
	Value   string   `json:"value"`
	Cost    int64    `json:"cost"`
	Balance int64    `json:"balance"`
}

// Start begins a game in mode for p.
func (s *Service) Start(ctx context.Context, mode game.Mode, p Player) (StartResult, error) {
	if err := checkPlayer(p); err != nil {
		return StartResult{}, err
	}
	if mode == game.ModeDaily {
		return s.startDaily(ctx, p)
	}
	target, err := s.Cards.Random(ctx)
	if err != nil {
		return StartResult{}, apperr.Internal("could not pick a card", err)
	}
	sess := s.newSession(s.newID(), mode, target, p, s.now())
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return StartResult{}, apperr.Internal("could not save game", err)
	}
	log.Info().Str("gameId", sess.ID).Str("mode", string(mode)).Str("player", p.ID).Msg("game started")
	return startResult(sess, false), nil
}

func (s *Service) newSession(id string, mode game.Mode, target *card.Card, p Player, now time.Time) *game.Session {
	sess := game.NewSession(id, mode, target, now)
	sess.UserID = p.ID
	switch mode {
	case game.ModeText:
		sess.CensoredText = game.MaskName(target.OracleText, target.Name)
	case game.ModeBlur:
		sess.BlurRadius = s.cfg.Blur.Radius(0)
	}
	return sess
}

// startDaily starts today's daily game, or resumes it when the player has
// an unfinished one. A finished daily game is a conflict.
func (s *Service) startDaily(ctx context.Context, p Player) (StartResult, error) {
	if p.ID == "" {
		return StartResult{}, apperr.Validation("a player id is required for the daily game")
	}
	unlock := s.locks.Lock("daily:" + p.ID)
	defer unlock()

	now := s.now()
	date := daily.DateKey(now)

	prev, err := s.Dailies.Find(ctx, p.ID, date)
	switch {
	case err == nil:
		return s.resumeDaily(ctx, prev, p)
	case !errors.Is(err, daily.ErrNotFound):
		return StartResult{}, apperr.Internal("could not load daily game", err)
	}

	name := s.Pool.CardFor(now)
	target, err := s.Cards.Named(ctx, name)
	if err != nil {
		return StartResult{}, apperr.Internal("could not load today's card", err)
	}
	play := daily.Play{UserID: p.ID, Date: date, GameID: s.newID(), CardName: target.Name, StartedAt: now}
	if err := s.Dailies.Begin(ctx, play); err != nil {
		if errors.Is(err, daily.ErrAlreadyPlayed) {
			return StartResult{}, apperr.Conflict("daily already played today")
		}
		return StartResult{}, apperr.Internal("could not start daily game", err)
	}

	sess := s.newSession(play.GameID, game.ModeDaily, target, p, now)
	sess.Date = date
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return StartResult{}, apperr.Internal("could not save game", err)
	}
	log.Info().Str("gameId", sess.ID).Str("date", date).Str("player", p.ID).Msg("daily started")
	return startResult(sess, false), nil
}

func (s *Service) resumeDaily(ctx context.Context, prev daily.Play, p Player) (StartResult, error) {
	if prev.Finished {
		return StartResult{}, apperr.Conflict("daily already played today")
	}
	sess, err := s.Sessions.Get(ctx, prev.GameID)
	if err == nil {
		return startResult(sess, true), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return StartResult{}, apperr.Internal("could not load game", err)
	}

	// The session expired or the process restarted; rebuild it from the row.
	target, err := s.Cards.Named(ctx, prev.CardName)
	if err != nil {
		return StartResult{}, apperr.Internal("could not load today's card", err)
	}
	sess = s.newSession(prev.GameID, game.ModeDaily, target, p, prev.StartedAt)
	sess.Date = prev.Date
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return StartResult{}, apperr.Internal("could not save game", err)
	}
	return startResult(sess, true), nil
}

func startResult(sess *game.Session, resumed bool) StartResult {
	r := StartResult{
		GameID:       sess.ID,
		Mode:         sess.Mode,
		Date:         sess.Date,
		Attempts:     sess.Attempts,
		Guesses:      sess.Guesses,
		Resumed:      resumed,
		CensoredText: sess.CensoredText,
		BlurRadius:   sess.BlurRadius,
	}
	if sess.Mode == game.ModeBlur {
		r.ImageURL = sess.Target.ImageURL
	}
	return r
}

// Guess scores guess against the session's target.
func (s *Service) Guess(ctx context.Context, gameID, guess string, p Player) (GuessResult, error) {
	guess = strings.TrimSpace(guess)
	if gameID == "" {
		return GuessResult{}, apperr.Validation("gameId is required")
	}
	if guess == "" {
		return GuessResult{}, apperr.Validation("guess must be a non-empty string")
	}

	unlock := s.locks.Lock(gameID)
	defer unlock()

	sess, err := s.load(ctx, gameID, p)
	if err != nil {
		return GuessResult{}, err
	}
	if sess.Finished {
		return GuessResult{}, apperr.Conflict("game already finished")
	}

	guessed, err := s.Cards.Named(ctx, guess)
	if errors.Is(err, scryfall.ErrCardNotFound) {
		return GuessResult{}, apperr.NotFound(fmt.Sprintf("no card named %q", guess))
	}
	if err != nil {
		return GuessResult{}, apperr.Internal("card lookup failed", err)
	}

	ev, won, err := sess.ApplyGuess(guess, guessed, s.cfg.Blur)
	if err != nil {
		return GuessResult{}, apperr.Conflict("game already finished")
	}
	res := GuessResult{
		Correct:    won,
		Attempts:   sess.Attempts,
		Guessed:    guessed.Public(),
		Feedback:   ev.Feedback,
		OracleText: ev.OracleText,
		Legalities: ev.Legalities,
		BlurRadius: sess.BlurRadius,
	}
	if !won {
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return GuessResult{}, apperr.Internal("could not save game", err)
		}
		return res, nil
	}

	elapsed := s.now().Sub(sess.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	res.Target = sess.Target
	res.TimeSpentMs = elapsed.Milliseconds()

	if err := s.resolve(ctx, sess, true, elapsed); err != nil {
		return GuessResult{}, err
	}
	s.reward(ctx, sess, p, elapsed, &res)
	log.Info().Str("gameId", sess.ID).Str("mode", string(sess.Mode)).Int("attempts", sess.Attempts).
		Str("player", p.ID).Msg("game won")
	return res, nil
}

// load fetches a session and checks that a daily session belongs to p.
func (s *Service) load(ctx context.Context, gameID string, p Player) (*game.Session, error) {
	if err := checkPlayer(p); err != nil {
		return nil, err
	}
	sess, err := s.Sessions.Get(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("game not found")
	}
	if err != nil {
		return nil, apperr.Internal("could not load game", err)
	}
	if sess.Mode == game.ModeDaily && sess.UserID != p.ID {
		return nil, apperr.Forbidden("this daily game belongs to another player")
	}
	return sess, nil
}

// resolve persists the end of a game: daily rows are closed and the
// session kept; other sessions are deleted.
func (s *Service) resolve(ctx context.Context, sess *game.Session, won bool, elapsed time.Duration) error {
	if sess.Mode == game.ModeDaily {
		if err := s.Dailies.Finish(ctx, sess.UserID, sess.Date, won, sess.Attempts, elapsed); err != nil {
			return apperr.Internal("could not finish daily game", err)
		}
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return apperr.Internal("could not save game", err)
		}
		return nil
	}
	if err := s.Sessions.Delete(ctx, sess.ID); err != nil {
		return apperr.Internal("could not close game", err)
	}
	return nil
}

// reward records the match and credits the win for signed-in players.
// The game is already resolved, so failures are logged, not returned.
func (s *Service) reward(ctx context.Context, sess *game.Session, p Player, elapsed time.Duration, res *GuessResult) {
	if p.Guest || p.ID == "" {
		return
	}
	err := s.Matches.Record(ctx, leaderboard.Match{
		GameID:     sess.ID,
		UserID:     p.ID,
		Name:       p.Name,
		Email:      p.Email,
		Mode:       sess.Mode,
		CardName:   sess.Target.Name,
		Attempts:   sess.Attempts,
		TimeSpent:  elapsed,
		FinishedAt: s.now(),
	})
	if errors.Is(err, leaderboard.ErrAlreadyRecorded) {
		return
	}
	if err != nil {
		log.Error().Err(err).Str("gameId", sess.ID).Msg("record match")
		return
	}

	amount := s.cfg.Rewards.For(sess.Mode)
	if amount <= 0 {
		return
	}
	acc, err := s.Wallet.Credit(ctx, p.ID, amount, "win:"+string(sess.Mode))
	if err != nil {
		log.Error().Err(err).Str("gameId", sess.ID).Msg("credit win")
		return
	}
	res.Reward = amount
	res.Balance = &acc.Balance
}

// Status describes a session without changing it.
func (s *Service) Status(ctx context.Context, gameID string, p Player) (StatusResult, error) {
	sess, err := s.load(ctx, gameID, p)
	if err != nil {
		return StatusResult{}, err
	}
	return status(sess), nil
}

func status(sess *game.Session) StatusResult {
	r := StatusResult{
		GameID:       sess.ID,
		Mode:         sess.Mode,
		Date:         sess.Date,
		StartedAt:    sess.StartedAt,
		Attempts:     sess.Attempts,
		Guesses:      sess.Guesses,
		Finished:     sess.Finished,
		Won:          sess.Won,
		HintsUsed:    sess.HintsUsed,
		CensoredText: sess.CensoredText,
		BlurRadius:   sess.BlurRadius,
	}
	if r.HintsUsed == nil {
		r.HintsUsed = []string{}
	}
	if sess.Mode == game.ModeBlur {
		r.ImageURL = sess.Target.ImageURL
	}
	if sess.Finished {
		r.Target = sess.Target
	}
	return r
}

// Hint sells a clue about the target. A hint already bought for this game
// is returned again free of charge.
func (s *Service) Hint(ctx context.Context, gameID string, kind HintKind, p Player) (HintResult, error) {
	if p.Guest || p.ID == "" {
		return HintResult{}, apperr.Unauthorized("sign in to buy hints")
	}
	cost, ok := s.cfg.Hints.Cost(kind)
	if !ok {
		return HintResult{}, apperr.Validation(fmt.Sprintf("unknown hint kind %q", kind))
	}

	unlock := s.locks.Lock(gameID)
	defer unlock()

	sess, err := s.load(ctx, gameID, p)
	if err != nil {
		return HintResult{}, err
	}
	if sess.Finished {
		return HintResult{}, apperr.Conflict("game already finished")
	}
	value := hintValue(sess.Target, kind)

	for _, used := range sess.HintsUsed {
		if used == string(kind) {
			acc, err := s.Wallet.Balance(ctx, p.ID)
			if err != nil {
				return HintResult{}, apperr.Internal("could not read balance", err)
			}
			return HintResult{Kind: kind, Value: value, Balance: acc.Balance}, nil
		}
	}

	acc, err := s.Wallet.Debit(ctx, p.ID, cost, "hint:"+string(kind))
	if errors.Is(err, coins.ErrInsufficientBalance) {
		return HintResult{}, apperr.InsufficientBalance(fmt.Sprintf("this hint costs %d coins", cost))
	}
	if err != nil {
		return HintResult{}, apperr.Internal("could not charge for hint", err)
	}
	sess.HintsUsed = append(sess.HintsUsed, string(kind))
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return HintResult{}, apperr.Internal("could not save game", err)
	}
	return HintResult{Kind: kind, Value: value, Cost: cost, Balance: acc.Balance}, nil
}

func hintValue(c *card.Card, kind HintKind) string {
	switch kind {
	case HintOracle:
		return game.MaskName(c.OracleText, c.Name)
	case HintSet:
		return c.SetName
	case HintArtist:
		return c.Artist
	case HintFirstLetter:
		r, _ := utf8.DecodeRuneInString(c.Name)
		return string(r)
	}
	return ""
}

// GiveUp ends the game as lost and reveals the target.
func (s *Service) GiveUp(ctx context.Context, gameID string, p Player) (StatusResult, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	sess, err := s.load(ctx, gameID, p)
	if err != nil {
		return StatusResult{}, err
	}
	if sess.Finished {
		return StatusResult{}, apperr.Conflict("game already finished")
	}
	sess.Finished = true
	if sess.Mode == game.ModeBlur {
		sess.BlurRadius = 0
	}
	elapsed := s.now().Sub(sess.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if err := s.resolve(ctx, sess, false, elapsed); err != nil {
		return StatusResult{}, err
	}
	log.Info().Str("gameId", sess.ID).Str("player", p.ID).Msg("game given up")
	return status(sess), nil
}
