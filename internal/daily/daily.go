// internal/daily/daily.go
//
// Daily mode: one target card per calendar date, shared by every player.
// The card is picked deterministically with HMAC(salt, YYYY-MM-DD) over a
// fixed pool of card names, so all server instances agree without
// coordination and the answer cannot be derived without the salt.

package daily

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robalobadob/cardle/assets"
)

// DateKey returns YYYY-MM-DD in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CardIndex returns a deterministic index for a date using HMAC(salt, YYYY-MM-DD) % n.
func CardIndex(date time.Time, salt string, n int) int {
	if n <= 0 {
		return 0
	}
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(DateKey(date)))
	sum := h.Sum(nil)
	// first 8 bytes as uint64 for the modulus
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(n))
}

// Pool is the ordered list of daily card names.
type Pool struct {
	names []string
	salt  string
}

// LoadPool reads card names from path, one per line, or the embedded pool
// when path is empty. Blank lines and #-comments are skipped.
func LoadPool(path, salt string) (*Pool, error) {
	var (
		names []string
		err   error
	)
	if path == "" {
		names, err = assets.DailyCards()
	} else {
		names, err = readPoolFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("load daily pool: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("daily pool is empty")
	}
	return &Pool{names: names, salt: salt}, nil
}

// NewPool builds a pool from names directly.
func NewPool(names []string, salt string) *Pool {
	return &Pool{names: append([]string(nil), names...), salt: salt}
}

func readPoolFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// Len reports the pool size.
func (p *Pool) Len() int { return len(p.names) }

// CardFor returns the card name assigned to the date of t.
func (p *Pool) CardFor(t time.Time) string {
	return p.names[CardIndex(t, p.salt, len(p.names))]
}
