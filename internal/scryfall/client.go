// internal/scryfall/client.go
//
// Card Data Gateway over the Scryfall REST API.
// Responsibilities:
//   - Exact-name lookups for guesses (/cards/named?exact=).
//   - Random target selection (/cards/random?q=).
//   - Name suggestions for the guess box (/cards/autocomplete).
//   - Normalizing Scryfall's card schema into card.Card.
//
// Named lookups are cached in an expiring LRU; cards are immutable, so a
// cached pointer is shared between callers.

package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/cardle/internal/card"
)

// ErrCardNotFound is returned when the catalog has no card with that name.
var ErrCardNotFound = errors.New("card not found")

// Config holds gateway settings.
type Config struct {
	BaseURL     string        `mapstructure:"base_url" validate:"required,url"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RandomQuery string        `mapstructure:"random_query"`
	UserAgent   string        `mapstructure:"user_agent" validate:"required"`
	CacheSize   int           `mapstructure:"cache_size" validate:"gte=1"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
}

// Client talks to the card catalog.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *expirable.LRU[string, *card.Card]
}

// New constructs a Client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:   cfg,
		http:  httpClient,
		cache: expirable.NewLRU[string, *card.Card](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Named resolves a card by its exact (case-insensitive) name.
func (c *Client) Named(ctx context.Context, name string) (*card.Card, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrCardNotFound
	}
	key := strings.ToLower(name)
	if cd, ok := c.cache.Get(key); ok {
		return cd, nil
	}

	var raw scryCard
	if err := c.get(ctx, "/cards/named", url.Values{"exact": {name}}, &raw); err != nil {
		return nil, err
	}
	cd := raw.normalize()
	c.cache.Add(key, cd)
	c.cache.Add(strings.ToLower(cd.Name), cd)
	return cd, nil
}

// Random returns a random card matching the configured query.
func (c *Client) Random(ctx context.Context) (*card.Card, error) {
	q := url.Values{}
	if c.cfg.RandomQuery != "" {
		q.Set("q", c.cfg.RandomQuery)
	}
	var raw scryCard
	if err := c.get(ctx, "/cards/random", q, &raw); err != nil {
		return nil, err
	}
	return raw.normalize(), nil
}

// Autocomplete returns up to 20 card names starting with prefix.
func (c *Client) Autocomplete(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 2 {
		return []string{}, nil
	}
	var res struct {
		Data []string `json:"data"`
	}
	if err := c.get(ctx, "/cards/autocomplete", url.Values{"q": {prefix}}, &res); err != nil {
		return nil, err
	}
	if res.Data == nil {
		res.Data = []string{}
	}
	return res.Data, nil
}

// get performs a GET and decodes a JSON body into out.
// A 404 maps to ErrCardNotFound; other non-2xx statuses carry Scryfall's details.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scryfall %s: %w", path, err)
	}
	defer resp.Body.Close()
	log.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("scryfall request")

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return ErrCardNotFound
	}
	if resp.StatusCode/100 != 2 {
		var e scryError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("scryfall %s: status %d: %s", path, resp.StatusCode, e.Details)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scryfall %s: decode: %w", path, err)
	}
	return nil
}
