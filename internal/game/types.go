// internal/game/types.go
//
// Core type definitions for the card-guessing engine.
// Defines:
//   - Outcome: per-attribute verdict tag for a guess.
//   - Feedback: the six-attribute verdict.
//   - Mode: game variant (normal, daily, text, blur).
//   - Session: state for a single in-progress or finished game.

package game

import (
	"time"

	"github.com/robalobadob/cardle/internal/card"
)

// Outcome is the verdict for a single attribute of a guess.
// Possible values:
//   - "correct":   attribute matches the target.
//   - "partial":   overlap without a full match (colors, type, artist).
//   - "incorrect": no match, or the guessed value is missing.
//   - "higher":    target mana value is higher than the guess.
//   - "lower":     target mana value is lower than the guess.
//   - "more rare": the guess is rarer than the target.
//   - "less rare": the guess is less rare than the target.
type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomePartial   Outcome = "partial"
	OutcomeIncorrect Outcome = "incorrect"
	OutcomeHigher    Outcome = "higher"
	OutcomeLower     Outcome = "lower"
	OutcomeMoreRare  Outcome = "more rare"
	OutcomeLessRare  Outcome = "less rare"
)

// Feedback is the field-by-field verdict for one guess. It is informational
// only; winning is decided by IsWin.
type Feedback struct {
	Colors  Outcome `json:"colors"`
	Type    Outcome `json:"type"`
	CMC     Outcome `json:"cmc"`
	Edition Outcome `json:"edition"`
	Rarity  Outcome `json:"rarity"`
	Artist  Outcome `json:"artist"`
}

// Evaluation bundles the feedback with the target-derived clues sent along
// with every guess.
type Evaluation struct {
	Feedback   Feedback          `json:"feedback"`
	OracleText string            `json:"oracleText"` // target text, name masked
	Legalities map[string]string `json:"legalities"` // lowercase format keys
}

// Mode selects the game variant.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeDaily  Mode = "daily"
	ModeText   Mode = "text"
	ModeBlur   Mode = "blur"
)

// ParseMode validates a client-supplied mode. Empty means normal.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case "", ModeNormal:
		return ModeNormal, true
	case ModeDaily, ModeText, ModeBlur:
		return Mode(s), true
	}
	return "", false
}

// Session holds the state of a single game.
type Session struct {
	ID        string     `json:"id"`
	Mode      Mode       `json:"mode"`
	Target    *card.Card `json:"target"`
	UserID    string     `json:"userId,omitempty"` // owner; empty for guests
	Date      string     `json:"date,omitempty"`   // daily mode only, YYYY-MM-DD
	StartedAt time.Time  `json:"startedAt"`
	Attempts  int        `json:"attempts"`
	Guesses   []string   `json:"guesses"` // resolved names, oldest first
	Finished  bool       `json:"finished"`
	Won       bool       `json:"won"`
	HintsUsed []string   `json:"hintsUsed,omitempty"`

	// Presentation state for side modes.
	CensoredText string  `json:"censoredText,omitempty"` // text mode
	BlurRadius   float64 `json:"blurRadius,omitempty"`   // blur mode
}

// BlurConfig drives the blur-mode image radius.
type BlurConfig struct {
	Initial float64 `mapstructure:"initial" validate:"gte=0"`
	Step    float64 `mapstructure:"step" validate:"gte=0"`
	Min     float64 `mapstructure:"min" validate:"gte=0,ltefield=Initial"`
}
