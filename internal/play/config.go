package play

import "github.com/robalobadob/cardle/internal/game"

// Config holds the game economy and presentation settings.
type Config struct {
	Blur    game.BlurConfig `mapstructure:"blur" validate:"required"`
	Rewards Rewards         `mapstructure:"rewards"`
	Hints   HintCosts       `mapstructure:"hints"`
}

// Rewards are the coins credited for a win, per mode.
type Rewards struct {
	Normal int64 `mapstructure:"normal" validate:"gte=0"`
	Daily  int64 `mapstructure:"daily" validate:"gte=0"`
	Text   int64 `mapstructure:"text" validate:"gte=0"`
	Blur   int64 `mapstructure:"blur" validate:"gte=0"`
}

// For returns the reward for mode.
func (r Rewards) For(m game.Mode) int64 {
	switch m {
	case game.ModeDaily:
		return r.Daily
	case game.ModeText:
		return r.Text
	case game.ModeBlur:
		return r.Blur
	default:
		return r.Normal
	}
}

// HintKind names a purchasable clue.
type HintKind string

const (
	HintOracle      HintKind = "oracle"
	HintSet         HintKind = "set"
	HintArtist      HintKind = "artist"
	HintFirstLetter HintKind = "first_letter"
)

// HintCosts are the coin prices of each hint kind.
type HintCosts struct {
	Oracle      int64 `mapstructure:"oracle" validate:"gte=1"`
	Set         int64 `mapstructure:"set" validate:"gte=1"`
	Artist      int64 `mapstructure:"artist" validate:"gte=1"`
	FirstLetter int64 `mapstructure:"first_letter" validate:"gte=1"`
}

// Cost returns the price of kind, or false for unknown kinds.
func (h HintCosts) Cost(kind HintKind) (int64, bool) {
	switch kind {
	case HintOracle:
		return h.Oracle, true
	case HintSet:
		return h.Set, true
	case HintArtist:
		return h.Artist, true
	case HintFirstLetter:
		return h.FirstLetter, true
	}
	return 0, false
}
