// internal/card/card.go
//
// Normalized card shape shared by the gateway, the comparator and the stores.
// Cards are immutable once fetched; callers must not mutate slices or maps
// they receive.

package card

import "strings"

// Canonical rarity names, in ascending order.
const (
	RarityCommon     = "Common"
	RarityUncommon   = "Uncommon"
	RarityRare       = "Rare"
	RarityMythicRare = "Mythic Rare"
)

var rarityOrder = map[string]int{
	RarityCommon:     0,
	RarityUncommon:   1,
	RarityRare:       2,
	RarityMythicRare: 3,
}

// Card is the internal representation of a catalog card.
type Card struct {
	Name       string            `json:"name"`
	Colors     []string          `json:"colors"`
	TypeLine   string            `json:"typeLine"`
	ManaValue  float64           `json:"manaValue"`
	SetName    string            `json:"setName"`
	Rarity     string            `json:"rarity"`
	Artist     string            `json:"artist"`
	OracleText string            `json:"oracleText"`
	Legalities map[string]string `json:"legalities"`
	ImageURL   string            `json:"imageUrl,omitempty"`
}

// Public is the subset of a card shown back to the player for a guess.
type Public struct {
	Name      string   `json:"name"`
	Colors    []string `json:"colors"`
	TypeLine  string   `json:"typeLine"`
	ManaValue float64  `json:"manaValue"`
	SetName   string   `json:"setName"`
	Rarity    string   `json:"rarity"`
	Artist    string   `json:"artist"`
}

// Public returns the guess-row projection of c.
func (c *Card) Public() Public {
	colors := c.Colors
	if colors == nil {
		colors = []string{}
	}
	return Public{
		Name:      c.Name,
		Colors:    colors,
		TypeLine:  c.TypeLine,
		ManaValue: c.ManaValue,
		SetName:   c.SetName,
		Rarity:    c.Rarity,
		Artist:    c.Artist,
	}
}

// RarityRank resolves r against the fixed rarity order.
// ok is false for anything outside Common..Mythic Rare.
func RarityRank(r string) (rank int, ok bool) {
	rank, ok = rarityOrder[r]
	return rank, ok
}

// NormalizeRarity maps catalog rarity codes ("common", "mythic", ...) to the
// canonical names. Unknown rarities are title-cased and will not resolve in
// RarityRank.
func NormalizeRarity(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "common":
		return RarityCommon
	case "uncommon":
		return RarityUncommon
	case "rare":
		return RarityRare
	case "mythic", "mythic rare":
		return RarityMythicRare
	case "":
		return ""
	}
	words := strings.Fields(strings.ToLower(r))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
