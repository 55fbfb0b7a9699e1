// internal/ads/tracker.go
//
// Rewarded-ad bookkeeping. Each user has an in-memory log of watch events
// (lost on restart). A watch is allowed only if all checks pass, evaluated
// in this order with the first failure reported:
//   1. per-type cooldown since the last ad of that type
//   2. global cooldown since the last ad of any type
//   3. per-type cap for the current UTC day
//   4. global cap over the last rolling hour

package ads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownType is returned for ad types missing from the configuration.
var ErrUnknownType = errors.New("unknown ad type")

// retention bounds how long events are kept; older ones never affect a check.
const retention = 48 * time.Hour

// TypeConfig holds the limits and reward of one ad type.
type TypeConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown" validate:"gte=0"`
	DailyCap int           `mapstructure:"daily_cap" validate:"gte=1"`
	Reward   int64         `mapstructure:"reward" validate:"gte=1"`
}

// Config holds the global limits and the per-type table.
type Config struct {
	GlobalCooldown time.Duration         `mapstructure:"global_cooldown" validate:"gte=0"`
	HourlyCap      int                   `mapstructure:"hourly_cap" validate:"gte=1"`
	Types          map[string]TypeConfig `mapstructure:"types" validate:"required,min=1,dive"`
}

// Reason names the check that blocked a watch.
type Reason string

const (
	ReasonCooldown       Reason = "cooldown"
	ReasonGlobalCooldown Reason = "global_cooldown"
	ReasonDailyCap       Reason = "daily_cap"
	ReasonHourlyCap      Reason = "hourly_cap"
)

// Availability is the outcome of a check.
type Availability struct {
	Allowed    bool
	Reason     Reason
	RetryAfter time.Duration
}

// Stats summarizes a user's recent ad activity.
type Stats struct {
	Today      map[string]int       `json:"today"`
	LastHour   int                  `json:"lastHour"`
	LastWatch  map[string]time.Time `json:"lastWatch"`
	TotalCount int                  `json:"total"`
}

// Crediter pays out ad rewards.
type Crediter interface {
	Credit(ctx context.Context, userID string, amount int64, reason string) error
}

// CreditFunc adapts a function to Crediter.
type CreditFunc func(ctx context.Context, userID string, amount int64, reason string) error

func (f CreditFunc) Credit(ctx context.Context, userID string, amount int64, reason string) error {
	return f(ctx, userID, amount, reason)
}

type event struct {
	typ string
	at  time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	events map[string][]event // per user, oldest first
	credit Crediter
	now    func() time.Time
}

func NewTracker(cfg Config, credit Crediter) *Tracker {
	return &Tracker{
		cfg:    cfg,
		events: make(map[string][]event),
		credit: credit,
		now:    time.Now,
	}
}

// Config returns the configured limits.
func (t *Tracker) Config() Config { return t.cfg }

// Check reports whether user may watch an ad of typ now.
func (t *Tracker) Check(userID, typ string) (Availability, error) {
	tc, ok := t.cfg.Types[typ]
	if !ok {
		return Availability{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.check(t.events[userID], typ, tc, t.now()), nil
}

func (t *Tracker) check(evs []event, typ string, tc TypeConfig, now time.Time) Availability {
	var lastType, lastAny time.Time
	for _, e := range evs {
		lastAny = e.at
		if e.typ == typ {
			lastType = e.at
		}
	}

	if !lastType.IsZero() {
		if wait := lastType.Add(tc.Cooldown).Sub(now); wait > 0 {
			return Availability{Reason: ReasonCooldown, RetryAfter: wait}
		}
	}
	if !lastAny.IsZero() {
		if wait := lastAny.Add(t.cfg.GlobalCooldown).Sub(now); wait > 0 {
			return Availability{Reason: ReasonGlobalCooldown, RetryAfter: wait}
		}
	}

	day := startOfDay(now)
	today := 0
	for _, e := range evs {
		if e.typ == typ && !e.at.Before(day) {
			today++
		}
	}
	if today >= tc.DailyCap {
		return Availability{Reason: ReasonDailyCap, RetryAfter: day.Add(24 * time.Hour).Sub(now)}
	}

	hourAgo := now.Add(-time.Hour)
	var inHour []time.Time
	for _, e := range evs {
		if e.at.After(hourAgo) {
			inHour = append(inHour, e.at)
		}
	}
	if len(inHour) >= t.cfg.HourlyCap {
		// Room frees up when enough of the oldest events leave the window.
		oldest := inHour[len(inHour)-t.cfg.HourlyCap]
		return Availability{Reason: ReasonHourlyCap, RetryAfter: oldest.Add(time.Hour).Sub(now)}
	}
	return Availability{Allowed: true}
}

// WatchResult is the outcome of a Watch.
type WatchResult struct {
	Availability Availability `json:"availability"`
	Reward       int64        `json:"reward"`
}

// Watch records an ad view when allowed and credits its reward. A failed
// credit removes the recorded view.
func (t *Tracker) Watch(ctx context.Context, userID, typ string) (WatchResult, error) {
	tc, ok := t.cfg.Types[typ]
	if !ok {
		return WatchResult{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	t.mu.Lock()
	now := t.now()
	evs := prune(t.events[userID], now)
	av := t.check(evs, typ, tc, now)
	if !av.Allowed {
		t.events[userID] = evs
		t.mu.Unlock()
		return WatchResult{Availability: av}, nil
	}
	ev := event{typ: typ, at: now}
	t.events[userID] = append(evs, ev)
	t.mu.Unlock()

	if t.credit != nil {
		if err := t.credit.Credit(ctx, userID, tc.Reward, "ad:"+typ); err != nil {
			t.forget(userID, ev)
			return WatchResult{}, err
		}
	}
	return WatchResult{Availability: av, Reward: tc.Reward}, nil
}

func (t *Tracker) forget(userID string, ev event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	evs := t.events[userID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i] == ev {
			t.events[userID] = append(evs[:i], evs[i+1:]...)
			return
		}
	}
}

// Stats returns the user's counts for today and the last hour.
func (t *Tracker) Stats(userID string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	day, hourAgo := startOfDay(now), now.Add(-time.Hour)

	s := Stats{Today: map[string]int{}, LastWatch: map[string]time.Time{}}
	for _, e := range t.events[userID] {
		s.TotalCount++
		if !e.at.Before(day) {
			s.Today[e.typ]++
		}
		if e.at.After(hourAgo) {
			s.LastHour++
		}
		s.LastWatch[e.typ] = e.at
	}
	return s
}

// Types lists configured ad types in name order.
func (t *Tracker) Types() []string {
	out := make([]string, 0, len(t.cfg.Types))
	for k := range t.cfg.Types {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func prune(evs []event, now time.Time) []event {
	cut := now.Add(-retention)
	i := 0
	for i < len(evs) && evs[i].at.Before(cut) {
		i++
	}
	return evs[i:]
}

// MarshalJSON reports durations in milliseconds.
func (a Availability) MarshalJSON() ([]byte, error) {
	type wire struct {
		Allowed      bool   `json:"allowed"`
		Reason       Reason `json:"reason,omitempty"`
		RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
	}
	return json.Marshal(wire{a.Allowed, a.Reason, a.RetryAfter.Milliseconds()})
}

// MarshalJSON reports durations in milliseconds.
func (c TypeConfig) MarshalJSON() ([]byte, error) {
	type wire struct {
		CooldownMs int64 `json:"cooldownMs"`
		DailyCap   int   `json:"dailyCap"`
		Reward     int64 `json:"reward"`
	}
	return json.Marshal(wire{c.Cooldown.Milliseconds(), c.DailyCap, c.Reward})
}

// MarshalJSON reports durations in milliseconds.
func (c Config) MarshalJSON() ([]byte, error) {
	type wire struct {
		GlobalCooldownMs int64                 `json:"globalCooldownMs"`
		HourlyCap        int                   `json:"hourlyCap"`
		Types            map[string]TypeConfig `json:"types"`
	}
	return json.Marshal(wire{c.GlobalCooldown.Milliseconds(), c.HourlyCap, c.Types})
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
