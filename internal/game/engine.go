// internal/game/engine.go
//
// Core engine for a single card-guessing session.
// Responsibilities:
//   - Compare a guessed card against the target, attribute by attribute.
//   - Mask the target's name out of its oracle text.
//   - Detect wins by name, independently of the feedback.
//   - Track state transitions: playing → won (or given up).
//
// Notes:
//   - The cmc verdict points from the guess to the answer: a guess below the
//     target yields "higher". The client's arrow icons depend on it.
//   - Rarity ordering comes from the card package.

package game

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/robalobadob/cardle/internal/card"
)

// ErrFinished is returned when a guess is applied to a finished session.
var ErrFinished = errors.New("game finished")

const maskRune = "█"

// NewSession constructs a new session for target.
func NewSession(id string, mode Mode, target *card.Card, now time.Time) *Session {
	return &Session{
		ID:        id,
		Mode:      mode,
		Target:    target,
		StartedAt: now,
		Guesses:   []string{},
	}
}

// ApplyGuess scores a resolved guess against the session target and mutates
// the session. input is the raw text the player typed.
//
// State transitions:
//   - If the name matches → Finished = true, Won = true.
//   - Blur mode sharpens the image after every guess and clears it on a win.
func (s *Session) ApplyGuess(input string, guessed *card.Card, blur BlurConfig) (Evaluation, bool, error) {
	if s.Finished {
		return Evaluation{}, false, ErrFinished
	}
	ev := Evaluate(guessed, s.Target)
	s.Attempts++
	s.Guesses = append(s.Guesses, guessed.Name)

	won := IsWin(input, s.Target.Name) || IsWin(guessed.Name, s.Target.Name)
	if won {
		s.Finished, s.Won = true, true
	}
	if s.Mode == ModeBlur {
		s.BlurRadius = blur.Radius(s.Attempts)
		if won {
			s.BlurRadius = 0
		}
	}
	return ev, won, nil
}

// Radius returns the blur radius after the given number of wrong attempts.
func (b BlurConfig) Radius(attempts int) float64 {
	return math.Max(b.Min, b.Initial-b.Step*float64(attempts))
}

// IsWin reports whether the guessed name equals the target name, ignoring
// case and surrounding whitespace.
func IsWin(guessName, targetName string) bool {
	g := strings.TrimSpace(guessName)
	return g != "" && strings.EqualFold(g, strings.TrimSpace(targetName))
}

// Evaluate compares guess with target and bundles the target clues.
func Evaluate(guess, target *card.Card) Evaluation {
	return Evaluation{
		Feedback:   Compare(guess, target),
		OracleText: MaskName(target.OracleText, target.Name),
		Legalities: NormalizeLegalities(target.Legalities),
	}
}

// Compare classifies each of the six attributes of guess against target.
// guess may have zero-valued (missing) fields; target is assumed complete.
func Compare(guess, target *card.Card) Feedback {
	return Feedback{
		Colors:  compareColors(guess.Colors, target.Colors),
		Type:    compareText(guess.TypeLine, target.TypeLine),
		CMC:     compareManaValue(guess.ManaValue, target.ManaValue),
		Edition: compareExact(guess.SetName, target.SetName),
		Rarity:  compareRarity(guess.Rarity, target.Rarity),
		Artist:  compareText(guess.Artist, target.Artist),
	}
}

// compareColors implements set comparison on color symbols.
//   - both empty → correct; exactly one empty → incorrect.
//   - identical sets → correct; overlapping → partial; disjoint → incorrect.
func compareColors(guess, target []string) Outcome {
	g, t := colorSet(guess), colorSet(target)
	switch {
	case len(g) == 0 && len(t) == 0:
		return OutcomeCorrect
	case len(g) == 0 || len(t) == 0:
		return OutcomeIncorrect
	}
	common := 0
	for c := range g {
		if _, ok := t[c]; ok {
			common++
		}
	}
	switch {
	case common == len(g) && common == len(t):
		return OutcomeCorrect
	case common > 0:
		return OutcomePartial
	default:
		return OutcomeIncorrect
	}
}

func colorSet(colors []string) map[string]struct{} {
	m := make(map[string]struct{}, len(colors))
	for _, c := range colors {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			m[c] = struct{}{}
		}
	}
	return m
}

// compareText is shared by type line and artist: a missing guess is
// incorrect, containment in either direction is partial.
func compareText(guess, target string) Outcome {
	switch {
	case guess == "":
		return OutcomeIncorrect
	case guess == target:
		return OutcomeCorrect
	case strings.Contains(guess, target) || strings.Contains(target, guess):
		return OutcomePartial
	default:
		return OutcomeIncorrect
	}
}

func compareManaValue(guess, target float64) Outcome {
	switch {
	case guess == target:
		return OutcomeCorrect
	case guess < target:
		return OutcomeHigher
	default:
		return OutcomeLower
	}
}

func compareExact(guess, target string) Outcome {
	if guess == target {
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}

func compareRarity(guess, target string) Outcome {
	if guess == target {
		return OutcomeCorrect
	}
	g, okG := card.RarityRank(guess)
	t, okT := card.RarityRank(target)
	switch {
	case !okG || !okT:
		return OutcomeIncorrect
	case g > t:
		return OutcomeMoreRare
	case g < t:
		return OutcomeLessRare
	default:
		return OutcomeCorrect
	}
}

// NormalizeLegalities returns a copy of m with lowercase format keys.
func NormalizeLegalities(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// MaskName replaces every case-insensitive whole-word occurrence of name,
// and of each of its words longer than two characters, with block runes of
// the same length as the matched span.
func MaskName(text, name string) string {
	if text == "" || strings.TrimSpace(name) == "" {
		return text
	}
	for _, term := range maskTerms(name) {
		text = maskTerm(text, term)
	}
	return text
}

// maskTerms lists the full name first, then its distinct long words.
func maskTerms(name string) []string {
	name = strings.TrimSpace(name)
	terms := []string{name}
	seen := map[string]bool{strings.ToLower(name): true}
	for _, w := range strings.Fields(name) {
		w = strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
		if utf8.RuneCountInString(w) <= 2 || seen[strings.ToLower(w)] {
			continue
		}
		seen[strings.ToLower(w)] = true
		terms = append(terms, w)
	}
	return terms
}

// maskTerm masks every whole-word occurrence of term. A match rejected for
// touching a letter is retried one rune later, so overlapping occurrences
// are still found.
func maskTerm(text, term string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
	var b strings.Builder
	last, pos := 0, 0
	for pos < len(text) {
		loc := re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !wordBoundary(text, start, end) {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(strings.Repeat(maskRune, utf8.RuneCountInString(text[start:end])))
		last, pos = end, end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// wordBoundary reports whether text[start:end] is not glued to letters or
// digits on either side.
func wordBoundary(text string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
