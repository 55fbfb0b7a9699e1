package scryfall

import (
	"strings"

	"github.com/robalobadob/cardle/internal/card"
)

// scryCard mirrors the fields of Scryfall's card object that the game uses.
type scryCard struct {
	Name       string            `json:"name"`
	Colors     []string          `json:"colors"`
	TypeLine   string            `json:"type_line"`
	CMC        float64           `json:"cmc"`
	SetName    string            `json:"set_name"`
	Rarity     string            `json:"rarity"`
	Artist     string            `json:"artist"`
	OracleText string            `json:"oracle_text"`
	Legalities map[string]string `json:"legalities"`
	ImageURIs  *imageURIs        `json:"image_uris"`
	CardFaces  []cardFace        `json:"card_faces"`
}

type cardFace struct {
	Name       string     `json:"name"`
	Colors     []string   `json:"colors"`
	TypeLine   string     `json:"type_line"`
	OracleText string     `json:"oracle_text"`
	Artist     string     `json:"artist"`
	ImageURIs  *imageURIs `json:"image_uris"`
}

type imageURIs struct {
	ArtCrop string `json:"art_crop"`
	Normal  string `json:"normal"`
}

type scryError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

// normalize converts the external schema into the internal card shape.
// Multi-faced cards keep top-level values where Scryfall provides them and
// fall back to the faces otherwise.
func (s scryCard) normalize() *card.Card {
	c := &card.Card{
		Name:       s.Name,
		Colors:     s.Colors,
		TypeLine:   s.TypeLine,
		ManaValue:  s.CMC,
		SetName:    s.SetName,
		Rarity:     card.NormalizeRarity(s.Rarity),
		Artist:     s.Artist,
		OracleText: s.OracleText,
		Legalities: s.Legalities,
	}
	if s.ImageURIs != nil {
		c.ImageURL = s.ImageURIs.ArtCrop
	}

	if len(s.CardFaces) > 0 {
		front := s.CardFaces[0]
		if c.Colors == nil {
			c.Colors = front.Colors
		}
		if c.TypeLine == "" {
			c.TypeLine = front.TypeLine
		}
		if c.Artist == "" {
			c.Artist = front.Artist
		}
		if c.OracleText == "" {
			texts := make([]string, 0, len(s.CardFaces))
			for _, f := range s.CardFaces {
				texts = append(texts, f.OracleText)
			}
			c.OracleText = strings.Join(texts, "\n//\n")
		}
		if c.ImageURL == "" && front.ImageURIs != nil {
			c.ImageURL = front.ImageURIs.ArtCrop
		}
	}
	if c.Colors == nil {
		c.Colors = []string{}
	}
	if c.Legalities == nil {
		c.Legalities = map[string]string{}
	}
	return c
}
