// Package assets embeds static data shipped with the server.
package assets

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed daily_cards.txt
var FS embed.FS

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
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

// DailyCards returns the built-in daily card pool in file order.
func DailyCards() ([]string, error) {
	return readLines("daily_cards.txt")
}
