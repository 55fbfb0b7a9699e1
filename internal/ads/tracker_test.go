package ads

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testConfig() Config {
	return Config{
		GlobalCooldown: 30 * time.Second,
		HourlyCap:      3,
		Types: map[string]TypeConfig{
			"rewarded": {Cooldown: 5 * time.Minute, DailyCap: 2, Reward: 20},
			"bonus":    {Cooldown: 30 * time.Minute, DailyCap: 5, Reward: 50},
		},
	}
}

type fakeCredit struct {
	total map[string]int64
	err   error
}

func (f *fakeCredit) Credit(_ context.Context, userID string, amount int64, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.total[userID] += amount
	return nil
}

func newTracker(start time.Time) (*Tracker, *time.Time, *fakeCredit) {
	now := start
	fc := &fakeCredit{total: map[string]int64{}}
	tr := NewTracker(testConfig(), fc)
	tr.now = func() time.Time { return now }
	return tr, &now, fc
}

func TestWatch_CheckOrder(t *testing.T) {
	ctx := context.Background()
	tr, now, fc := newTracker(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))

	res, err := tr.Watch(ctx, "u", "rewarded")
	require.NoError(t, err)
	assert.True(t, res.Availability.Allowed)
	assert.Equal(t, int64(20), res.Reward)
	assert.Equal(t, int64(20), fc.total["u"])

	// Same type inside its cooldown.
	*now = now.Add(10 * time.Second)
	av, err := tr.Check("u", "rewarded")
	require.NoError(t, err)
	assert.Equal(t, ReasonCooldown, av.Reason)
	assert.Equal(t, 4*time.Minute+50*time.Second, av.RetryAfter)

	// Other type inside the global cooldown.
	av, err = tr.Check("u", "bonus")
	require.NoError(t, err)
	assert.Equal(t, ReasonGlobalCooldown, av.Reason)
	assert.Equal(t, 20*time.Second, av.RetryAfter)

	*now = now.Add(5 * time.Minute)
	res, err = tr.Watch(ctx, "u", "rewarded")
	require.NoError(t, err)
	require.True(t, res.Availability.Allowed)

	// Daily cap of 2 reached for rewarded.
	*now = now.Add(6 * time.Minute)
	av, err = tr.Check("u", "rewarded")
	require.NoError(t, err)
	assert.Equal(t, ReasonDailyCap, av.Reason)
	assert.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC).Sub(*now), av.RetryAfter)

	// A third ad in the hour is allowed, a fourth hits the hourly cap.
	res, err = tr.Watch(ctx, "u", "bonus")
	require.NoError(t, err)
	require.True(t, res.Availability.Allowed)

	tr.cfg.Types["extra"] = TypeConfig{Cooldown: 0, DailyCap: 10, Reward: 1}
	*now = now.Add(time.Minute)
	av, err = tr.Check("u", "extra")
	require.NoError(t, err)
	assert.Equal(t, ReasonHourlyCap, av.Reason)
	// Oldest event at 10:00:00 leaves the window at 11:00:00.
	assert.Equal(t, time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC).Sub(*now), av.RetryAfter)

	// Blocked watches record nothing and pay nothing.
	res, err = tr.Watch(ctx, "u", "extra")
	require.NoError(t, err)
	assert.False(t, res.Availability.Allowed)
	assert.Equal(t, int64(90), fc.total["u"])

	st := tr.Stats("u")
	assert.Equal(t, 3, st.TotalCount)
	assert.Equal(t, 3, st.LastHour)
	assert.Equal(t, 2, st.Today["rewarded"])
	assert.Equal(t, 1, st.Today["bonus"])
}

func TestWatch_DailyCapResetsAtMidnight(t *testing.T) {
	ctx := context.Background()
	tr, now, _ := newTracker(time.Date(2026, 4, 1, 21, 0, 0, 0, time.UTC))
	for i := 0; i < 2; i++ {
		res, err := tr.Watch(ctx, "u", "rewarded")
		require.NoError(t, err)
		require.True(t, res.Availability.Allowed)
		*now = now.Add(2 * time.Hour)
	}
	// 01:00 the next day.
	av, err := tr.Check("u", "rewarded")
	require.NoError(t, err)
	assert.True(t, av.Allowed)
}

func TestWatch_UnknownTypeAndCreditFailure(t *testing.T) {
	ctx := context.Background()
	tr, _, fc := newTracker(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))

	_, err := tr.Check("u", "nope")
	assert.ErrorIs(t, err, ErrUnknownType)
	_, err = tr.Watch(ctx, "u", "nope")
	assert.ErrorIs(t, err, ErrUnknownType)

	fc.err = errors.New("db down")
	_, err = tr.Watch(ctx, "u", "rewarded")
	require.Error(t, err)
	assert.Zero(t, tr.Stats("u").TotalCount, "failed credit forgets the view")

	fc.err = nil
	res, err := tr.Watch(ctx, "u", "rewarded")
	require.NoError(t, err)
	assert.True(t, res.Availability.Allowed)
}

func TestUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC))
	_, err := tr.Watch(ctx, "a", "rewarded")
	require.NoError(t, err)
	av, err := tr.Check("b", "rewarded")
	require.NoError(t, err)
	assert.True(t, av.Allowed)
}

func TestJSON(t *testing.T) {
	b, err := json.Marshal(Availability{Reason: ReasonCooldown, RetryAfter: 1500 * time.Millisecond})
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":false,"reason":"cooldown","retryAfterMs":1500}`, string(b))

	b, err = json.Marshal(testConfig())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"globalCooldownMs":30000`)
	assert.Contains(t, string(b), `"rewarded":{"cooldownMs":300000,"dailyCap":2,"reward":20}`)
}

// The reported reason is always the first failing check in the fixed order.
func TestCheck_OrderProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := Config{
			GlobalCooldown: time.Duration(rapid.IntRange(0, 600).Draw(rt, "global")) * time.Second,
			HourlyCap:      rapid.IntRange(1, 6).Draw(rt, "hourly"),
			Types: map[string]TypeConfig{
				"a": {
					Cooldown: time.Duration(rapid.IntRange(0, 3600).Draw(rt, "cooldownA")) * time.Second,
					DailyCap: rapid.IntRange(1, 6).Draw(rt, "capA"),
					Reward:   1,
				},
				"b": {
					Cooldown: time.Duration(rapid.IntRange(0, 3600).Draw(rt, "cooldownB")) * time.Second,
					DailyCap: rapid.IntRange(1, 6).Draw(rt, "capB"),
					Reward:   1,
				},
			},
		}
		now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

		// Events within the last 13 hours, oldest first.
		n := rapid.IntRange(0, 10).Draw(rt, "n")
		offsets := rapid.SliceOfNDistinct(rapid.IntRange(1, 13*3600), n, n, rapid.ID[int]).Draw(rt, "offsets")
		sorted := append([]int(nil), offsets...)
		sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
		var evs []event
		for _, off := range sorted {
			typ := rapid.SampledFrom([]string{"a", "b"}).Draw(rt, "typ")
			evs = append(evs, event{typ: typ, at: now.Add(-time.Duration(off) * time.Second)})
		}

		typ := rapid.SampledFrom([]string{"a", "b"}).Draw(rt, "check")
		tc := cfg.Types[typ]
		tr := &Tracker{cfg: cfg}
		got := tr.check(evs, typ, tc, now)

		var (
			typeCool, globalCool bool
			today, hour          int
		)
		for _, e := range evs {
			age := now.Sub(e.at)
			if e.typ == typ && age < tc.Cooldown {
				typeCool = true
			}
			if age < cfg.GlobalCooldown {
				globalCool = true
			}
			if e.typ == typ && e.at.Day() == now.Day() {
				today++
			}
			if age < time.Hour {
				hour++
			}
		}

		var want Reason
		switch {
		case typeCool:
			want = ReasonCooldown
		case globalCool:
			want = ReasonGlobalCooldown
		case today >= tc.DailyCap:
			want = ReasonDailyCap
		case hour >= cfg.HourlyCap:
			want = ReasonHourlyCap
		}
		if got.Reason != want || got.Allowed != (want == "") {
			rt.Fatalf("got %+v, want reason %q", got, want)
		}
		if !got.Allowed && got.RetryAfter <= 0 {
			rt.Fatalf("blocked without a positive retry: %+v", got)
		}
	})
}
