package imagery

import (
	"sort"

	"github.com/nutriplan/nutriplan/internal/diet"
)

// Curated is a fixed table of food images keyed by normalised name.
type Curated struct {
	exact map[string]Image
	// keys sorted by length, longest first, for substring matching
	keys []string
}

// NewCurated builds a table from display names. Names are normalised so
// "Feijão" and "feijao" share an entry.
func NewCurated(entries map[string]Image) *Curated {
	c := &Curated{exact: make(map[string]Image, len(entries))}
	for name, img := range entries {
		key := diet.Normalize(name)
		if key == "" {
			continue
		}
		c.exact[key] = img
	}
	for key := range c.exact {
		c.keys = append(c.keys, key)
	}
	sort.Slice(c.keys, func(i, j int) bool {
		if len(c.keys[i]) != len(c.keys[j]) {
			return len(c.keys[i]) > len(c.keys[j])
		}
		return c.keys[i] < c.keys[j]
	})
	return c
}

// Lookup matches the normalised name exactly, then falls back to the longest
// table entry contained in it.
func (c *Curated) Lookup(name string) (Image, bool) {
	if c == nil {
		return Image{}, false
	}
	key := diet.Normalize(name)
	if img, ok := c.exact[key]; ok {
		return img, true
	}
	for _, k := range c.keys {
		if containsWord(key, k) {
			return c.exact[k], true
		}
	}
	return Image{}, false
}

func containsWord(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] != sub {
			continue
		}
		before := i == 0 || s[i-1] == ' '
		after := i+len(sub) == len(s) || s[i+len(sub)] == ' '
		if before && after {
			return true
		}
	}
	return false
}

// DefaultCurated returns the built-in table of common foods.
func DefaultCurated(baseURL string) *Curated {
	names := []string{
		"arroz", "arroz integral", "feijão", "frango", "peito de frango", "ovo", "ovos",
		"banana", "maçã", "aveia", "iogurte", "tapioca", "batata doce", "brócolis",
		"salmão", "tilápia", "carne moída", "tofu", "lentilha", "grão de bico",
		"pão integral", "queijo cottage", "abacate", "salada", "whey protein",
	}
	entries := make(map[string]Image, len(names))
	for _, n := range names {
		slug := slugify(n)
		entries[n] = Image{
			URL:          baseURL + "/curated/" + slug + ".png",
			ThumbnailURL: baseURL + "/curated/thumbnails/" + slug + ".png",
		}
	}
	return NewCurated(entries)
}
