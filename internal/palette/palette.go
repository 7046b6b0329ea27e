package palette

import (
	"slices"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/JakeFAU/brandscan/internal/sampler"
)

// Fallback colors for palette slots the input cannot fill.
const (
	DefaultPrimary    = "#2563eb"
	DefaultSecondary  = "#7c3aed"
	DefaultAccent     = "#f59e0b"
	DefaultNeutral    = "#6b7280"
	DefaultForeground = "#1a1a1a"
	DefaultBackground = "#ffffff"
)

// maxWeight bounds how many times one sampled color is repeated in the
// clustering input.
const maxWeight = 64

// Palette is the semantic color set. Every field is a 6-digit hex string.
type Palette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Neutral    string `json:"neutral"`
	Foreground string `json:"foreground"`
	Background string `json:"background"`
}

// Build clusters the usable pools and assigns slots by descending
// saturation. Foreground and background are the dominant colors of their
// pools.
func Build(pools sampler.Pools, opts Options) Palette {
	samples := Expand(append(slices.Clone(pools.Foreground), pools.Background...))
	centroids := Cluster(samples, opts)
	ranked := RankBySaturation(centroids)

	slots := []string{DefaultPrimary, DefaultSecondary, DefaultAccent, DefaultNeutral}
	for i := range slots {
		if i < len(ranked) {
			slots[i] = ranked[i].Clamped().Hex()
		}
	}
	return Palette{
		Primary:    slots[0],
		Secondary:  slots[1],
		Accent:     slots[2],
		Neutral:    slots[3],
		Foreground: hexOr(pools.DominantForeground, DefaultForeground),
		Background: hexOr(pools.DominantBackground, DefaultBackground),
	}
}

// Expand repeats each sample by its count, capped at maxWeight.
func Expand(samples []sampler.Sample) []colorful.Color {
	var out []colorful.Color
	for _, s := range samples {
		n := min(max(s.Count, 1), maxWeight)
		for range n {
			out = append(out, s.Color)
		}
	}
	return out
}

// RankBySaturation orders colors by HSV saturation, highest first; ties fall
// back to hex order.
func RankBySaturation(colors []colorful.Color) []colorful.Color {
	ranked := slices.Clone(colors)
	slices.SortStableFunc(ranked, func(a, b colorful.Color) int {
		sa, sb := Saturation(a), Saturation(b)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		ha, hb := a.Clamped().Hex(), b.Clamped().Hex()
		switch {
		case ha < hb:
			return -1
		case ha > hb:
			return 1
		}
		return 0
	})
	return ranked
}

// Saturation is (max-min)/max over the RGB channels, 0 for black.
func Saturation(c colorful.Color) float64 {
	c = c.Clamped()
	hi := max(c.R, c.G, c.B)
	lo := min(c.R, c.G, c.B)
	if hi == 0 {
		return 0
	}
	return (hi - lo) / hi
}

func hexOr(hex, fallback string) string {
	c, err := colorful.Hex(hex)
	if err != nil || len(hex) != 7 {
		return fallback
	}
	return c.Hex()
}
